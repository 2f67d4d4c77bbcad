package receipt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Order is the payload of a print_job event: one submitted order as the
// SaaS delivers it.
type Order struct {
	FormName        string     `json:"formName"`
	Protocol        string     `json:"protocol"`
	TableNumber     string     `json:"tableNumber"`
	GarcomName      string     `json:"garcomName"`
	Responder       Responder  `json:"responder"`
	MenuItems       []MenuItem `json:"menuItems"`
	Answers         []Answer   `json:"answers"`
	SubmittedAt     string     `json:"submittedAt"`
	DeliveryScanURL string     `json:"deliveryScanUrl"`
}

// Responder holds the customer identification attached to the order.
type Responder struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// MenuItem is one ordered product line.
type MenuItem struct {
	ProductName  string `json:"productName"`
	Quantity     int    `json:"quantity"`
	ProductValue Amount `json:"productValue"`
	Grupo        string `json:"grupo"`
}

// Answer is a free-form form answer (label/value pair).
type Answer struct {
	Label  string `json:"label"`
	Answer string `json:"answer"`
}

// Amount is a monetary value that the SaaS serializes inconsistently as
// either a JSON number or a numeric string. Anything else fails to parse:
// a malformed price must surface as a job error, not print as zero.
type Amount float64

// UnmarshalJSON accepts 12.5, "12.5" and "12,50".
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		s = strings.Replace(strings.TrimSpace(unquoted), ",", ".", 1)
	}
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid monetary value %s", string(data))
	}
	*a = Amount(v)
	return nil
}

package render

import (
	"fmt"

	"github.com/John-Robertt/surge2clash/internal/model"
)

func ruleToClashString(r model.Rule) string {
	if r.Type == "MATCH" {
		return fmt.Sprintf("MATCH,%s", r.Action)
	}
	return fmt.Sprintf("%s,%s,%s", r.Type, r.Value, r.Action)
}

package criteria

import (
	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dao"
)

// Matches reports whether the request satisfies every supplied parameter.
// Unknown parameter names are ignored.
func Matches(r *model.Request, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		switch parameter.Name {
		case dao.ParamStatus:
			if !matchValue(string(r.Status), parameter.Value) {
				return false
			}
		case dao.ParamRecipient:
			if !matchValue(model.BareAddress(r.RecipientAddress), parameter.Value) {
				return false
			}
		}
	}
	return true
}

func matchValue(actual string, expected interface{}) bool {
	switch candidate := expected.(type) {
	case string:
		return candidate == "" || actual == candidate
	case []string:
		if len(candidate) == 0 {
			return true
		}
		for _, s := range candidate {
			if actual == s {
				return true
			}
		}
		return false
	}
	return true
}

// Values extracts the string values of the named parameter.
func Values(name string, parameters []*dao.Parameter) []string {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != name {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			if actual == "" {
				return nil
			}
			return []string{actual}
		case []string:
			return actual
		}
	}
	return nil
}

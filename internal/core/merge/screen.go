package merge

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/agenthands/cbning/internal/core/model"
)

var (
	structValidator *validator.Validate
	once            sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("cbnname", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		structValidator = v
	})
	return structValidator
}

// screen rejects diffs that cannot be resolved to node names before any merging happens.
// It returns one problem description per offending field.
func screen(current model.CBN, diff model.ProposedDiff) []string {
	var problems []string

	if err := getValidator().Struct(diff); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: empty or blank node name", trimNamespace(fe.Namespace())))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	for i, p := range diff.Nodes {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		_, exists := current.Node(p.Name)
		if (exists && !removed(diff, p.Name)) || p.States != nil {
			continue
		}
		problems = append(problems, fmt.Sprintf("nodes[%d]: new node %q is missing states", i, p.Name))
	}

	return problems
}

func removed(diff model.ProposedDiff, name string) bool {
	for _, r := range diff.RemoveNodes {
		if r == name {
			return true
		}
	}
	return false
}

func trimNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

package policy

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

//go:embed intent.rego
var defaultIntentPolicy string

// AppointmentKeyword is the trigger of the bundled policy and the fallback
// rule used when a custom policy cannot be evaluated.
const AppointmentKeyword = "turno"

const intentQuery = "data.intent.appointment"

// regoPrintHook forwards Rego print() statements to the context logger
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Intent decides whether a query asks for an appointment
type Intent struct {
	query *rego.PreparedEvalQuery
}

// NewIntent loads intent policies from policyDir. Without policyDir, or when the
// directory holds no .rego file, the bundled policy is used.
func NewIntent(ctx context.Context, policyDir string) (*Intent, error) {
	modules, err := loadModules(policyDir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		modules = append(modules, rego.Module("intent.rego", defaultIntentPolicy))
	}

	options := make([]func(*rego.Rego), 0, len(modules)+2)
	options = append(options, rego.Query(intentQuery), rego.EnablePrintStatements(true))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare intent policy", goerr.V("dir", policyDir))
	}

	return &Intent{query: &prepared}, nil
}

func loadModules(policyDir string) ([]func(*rego.Rego), error) {
	if policyDir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}
	return modules, nil
}

// IsAppointment evaluates the policy against an already lowercased query.
// Evaluation failures fall back to a plain substring check on AppointmentKeyword.
func (x *Intent) IsAppointment(ctx context.Context, query string, topic model.TopicID) bool {
	if x == nil || x.query == nil {
		return strings.Contains(query, AppointmentKeyword)
	}

	matched, err := x.eval(ctx, query, topic)
	if err != nil {
		logging.From(ctx).Warn("intent policy evaluation failed, falling back to keyword rule",
			"error", err, "topic", topic)
		return strings.Contains(query, AppointmentKeyword)
	}
	return matched
}

func (x *Intent) eval(ctx context.Context, query string, topic model.TopicID) (bool, error) {
	input := map[string]any{
		"query": query,
		"topic": string(topic),
	}

	rs, err := x.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{ctx: ctx}))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate intent policy")
	}

	// undefined result means the policy has no opinion
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	matched, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, goerr.New("intent policy must yield a boolean",
			goerr.V("value", rs[0].Expressions[0].Value))
	}
	return matched, nil
}

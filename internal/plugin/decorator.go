package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shineum/mailkit/internal/email"
)

// DecoratorName is the registry name of the decorator plugin.
const DecoratorName = "decorator"

// decorator personalizes a message per To recipient. With replacements
// configured, one copy is delivered per To address with that address's
// substitutions applied; Cc and Bcc recipients receive only the first copy.
type decorator struct {
	replacements map[string]map[string]string
	logger       *slog.Logger
}

// newDecorator reads params["replacements"], a map of recipient email to
// a map of search string to replacement.
func newDecorator(params map[string]any, deps Deps) (Plugin, error) {
	d := &decorator{replacements: make(map[string]map[string]string), logger: deps.Logger}

	switch raw := params["replacements"].(type) {
	case nil:
	case map[string]map[string]string:
		for addr, m := range raw {
			d.replacements[strings.ToLower(addr)] = m
		}
	case map[string]any:
		for addr, v := range raw {
			m, err := stringMap(v)
			if err != nil {
				return nil, fmt.Errorf("replacements for %s: %w", addr, err)
			}
			d.replacements[strings.ToLower(addr)] = m
		}
	default:
		return nil, fmt.Errorf("replacements: unsupported type %T", raw)
	}
	return d, nil
}

func (d *decorator) Name() string { return DecoratorName }

func (d *decorator) Wrap(next SendFunc) SendFunc {
	return func(ctx context.Context, msg *email.Message) Outcome {
		if len(d.replacements) == 0 || msg.To.Len() == 0 {
			return next(ctx, msg)
		}

		var total Outcome
		var sendErr error
		for i, to := range msg.To.Addresses() {
			cp := msg.Clone()
			cp.To.Reset()
			cp.To.Add(to.Email, to.Name)
			if i > 0 {
				cp.Cc.Reset()
				cp.Bcc.Reset()
			}
			cp.Replace(d.replacements[strings.ToLower(to.Email)])

			out := next(ctx, cp)
			if out.Err != nil {
				d.logger.Warn("decorated copy failed", "to", to.Email, "error", out.Err)
				sendErr = out.Err
				out = Outcome{Failures: cp.Recipients()}
			}
			total = total.Merge(out)
		}

		if total.Sent == 0 && sendErr != nil {
			total.Err = sendErr
		}
		return total
	}
}

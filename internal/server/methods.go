package server

import (
	"context"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// methodRuntime adapts *Server to plugin.MethodRuntime for one method
// invocation.
type methodRuntime struct {
	s *Server
}

func (m methodRuntime) Config() map[string]any        { return m.s.config }
func (m methodRuntime) Context() plugin.ContextHandle { return writableContext{m.s} }
func (m methodRuntime) Emit(ctx context.Context, eventType string, data map[string]any, urgent bool) (string, error) {
	id, err := m.s.Emit(ctx, eventType, data, urgent)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CallMethod invokes method m: it opens a trace span named
// "plugin.<name>.methods.<m>", validates input, calls Run, validates
// output, and returns a tagged failure on any validation or execution
// error — methods never panic across this boundary; a recovered panic
// inside Run is wrapped as Unknown.
func (s *Server) CallMethod(ctx context.Context, methodName string, input map[string]any) (map[string]any, *rterrors.Error) {
	def, ok := s.desc.Methods[methodName]
	if !ok {
		return nil, rterrors.New(rterrors.NotFound, "unknown method "+methodName)
	}

	result, err := telemetry.Trace(ctx, s.telemetry, "plugin."+s.desc.Name+".methods."+methodName,
		func(ctx context.Context, span *telemetry.Span) (map[string]any, error) {
			validatedInput := input
			if def.ValidateInput != nil {
				v, verr := def.ValidateInput(input)
				if verr != nil {
					return nil, rterrors.Wrap(rterrors.Validation, methodName+": invalid input", verr)
				}
				validatedInput = v
			}

			out, runErr := s.invokeRun(ctx, def, validatedInput)
			if runErr != nil {
				return nil, runErr
			}

			if def.ValidateOutput != nil {
				v, verr := def.ValidateOutput(out)
				if verr != nil {
					return nil, rterrors.Wrap(rterrors.Validation, methodName+": invalid output", verr)
				}
				out = v
			}
			return out, nil
		},
	)

	if err != nil {
		if re, ok := rterrors.AsError(err); ok {
			return nil, re
		}
		return nil, rterrors.AsUnknown(err)
	}
	return result, nil
}

// invokeRun calls the user-supplied method body, recovering any panic and
// wrapping it as an Unknown failure — "exceptions thrown by run are
// wrapped as Unknown" (spec.md §7).
func (s *Server) invokeRun(ctx context.Context, def plugin.MethodDef, input map[string]any) (out map[string]any, err *rterrors.Error) {
	defer func() {
		if r := recover(); r != nil {
			err = rterrors.AsUnknown(asError(r))
		}
	}()

	result, runErr := def.Run(ctx, methodRuntime{s}, input)
	if runErr != nil {
		if re, ok := rterrors.AsError(runErr); ok {
			return nil, re
		}
		return nil, rterrors.AsUnknown(runErr)
	}
	return result, nil
}

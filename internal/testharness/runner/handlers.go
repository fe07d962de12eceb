package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/clopstate/clop-go/internal/testharness/commonops"
	"github.com/clopstate/clop-go/internal/testharness/engine"
	"github.com/clopstate/clop-go/internal/testharness/loader"
	"github.com/clopstate/clop-go/pkg/wire"
)

func (r *Runner) registerHandlers() {
	r.engine.RegisterHandler(ActionSendCommand, r.handleSendCommand)
	r.engine.RegisterHandler(ActionReadOperationalState, r.handleReadOperationalState)
	r.engine.RegisterHandler(ActionReadOperationalError, r.handleReadOperationalError)
	r.engine.RegisterHandler(ActionReadOverallState, r.handleReadOverallState)
	r.engine.RegisterHandler(ActionReadAttribute, r.handleReadAttribute)
	r.engine.RegisterHandler(ActionInjectState, r.handleInjectState)
	r.engine.RegisterHandler(ActionWait, r.handleWait)
}

func (r *Runner) operations() (*commonops.Operations, error) {
	if r.ops == nil {
		return nil, Infrastructure(errors.New("not connected to a device"))
	}
	return r.ops, nil
}

func (r *Runner) handleSendCommand(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	ops, err := r.operations()
	if err != nil {
		return nil, err
	}
	cmd, err := buildCommand(step.Params)
	if err != nil {
		return nil, err
	}
	ep, err := paramEndpoint(step.Params, r.config.Endpoint)
	if err != nil {
		return nil, err
	}
	timed, err := paramTimed(step.Params)
	if err != nil {
		return nil, err
	}
	expected, checked, err := paramStatus(step.Params, ParamExpectStatus)
	if err != nil {
		return nil, err
	}

	if !checked {
		status, err := ops.SendCommand(ctx, ep, cmd, timed)
		if err != nil {
			return nil, err
		}
		return map[string]any{KeyStatus: status.String()}, nil
	}
	if err := ops.SendCommandExpectStatus(ctx, ep, cmd, expected, timed); err != nil {
		return nil, err
	}
	return map[string]any{KeyStatus: expected.String()}, nil
}

func (r *Runner) handleReadOperationalState(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	ops, err := r.operations()
	if err != nil {
		return nil, err
	}
	ep, err := paramEndpoint(step.Params, r.config.Endpoint)
	if err != nil {
		return nil, err
	}
	expected, err := paramEnum(step.Params, ParamExpected, wire.ParseOperationalState)
	if err != nil {
		return nil, err
	}

	if expected != nil {
		if err := ops.ReadOperationalStateWithCheck(ctx, ep, *expected); err != nil {
			return nil, err
		}
		return map[string]any{KeyState: expected.String(), KeyValue: uint64(*expected)}, nil
	}
	state, err := ops.ReadOperationalState(ctx, ep)
	if err != nil {
		return nil, err
	}
	return map[string]any{KeyState: state.String(), KeyValue: uint64(state)}, nil
}

func (r *Runner) handleReadOperationalError(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	ops, err := r.operations()
	if err != nil {
		return nil, err
	}
	ep, err := paramEndpoint(step.Params, r.config.Endpoint)
	if err != nil {
		return nil, err
	}
	expected, err := paramEnum(step.Params, ParamExpected, wire.ParseErrorState)
	if err != nil {
		return nil, err
	}

	if expected != nil {
		if err := ops.ReadOperationalErrorWithCheck(ctx, ep, *expected); err != nil {
			return nil, err
		}
		return map[string]any{KeyErrorState: expected.String(), KeyValue: uint64(*expected)}, nil
	}
	es, err := ops.ReadOperationalError(ctx, ep)
	if err != nil {
		return nil, err
	}
	return map[string]any{KeyErrorState: es.ErrorStateID.String(), KeyValue: uint64(es.ErrorStateID)}, nil
}

func (r *Runner) handleReadOverallState(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	ops, err := r.operations()
	if err != nil {
		return nil, err
	}
	ep, err := paramEndpoint(step.Params, r.config.Endpoint)
	if err != nil {
		return nil, err
	}
	positioning, err := paramEnum(step.Params, ParamPositioning, wire.ParsePositioning)
	if err != nil {
		return nil, err
	}
	latching, err := paramEnum(step.Params, ParamLatching, wire.ParseLatching)
	if err != nil {
		return nil, err
	}

	if positioning != nil || latching != nil {
		if err := ops.CheckOverallState(ctx, ep, positioning, latching); err != nil {
			return nil, err
		}
		out := map[string]any{}
		if positioning != nil {
			out[KeyPositioning] = positioning.String()
		}
		if latching != nil {
			out[KeyLatching] = latching.String()
		}
		return out, nil
	}
	overall, err := ops.ReadOverallStateWithInstanceCheck(ctx, ep)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		KeyPositioning: overall.Positioning.String(),
		KeyLatching:    overall.Latching.String(),
		KeySpeed:       overall.Speed.String(),
	}, nil
}

func (r *Runner) handleReadAttribute(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	ops, err := r.operations()
	if err != nil {
		return nil, err
	}
	name, ok := paramString(step.Params, ParamAttribute)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingParam, ParamAttribute)
	}
	attr, err := wire.ParseAttribute(name)
	if err != nil {
		return nil, err
	}
	ep, err := paramEndpoint(step.Params, r.config.Endpoint)
	if err != nil {
		return nil, err
	}
	v, err := ops.ReadAttribute(ctx, ep, attr)
	if err != nil {
		return nil, err
	}
	return map[string]any{KeyValue: v}, nil
}

func (r *Runner) handleInjectState(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	if !r.injector.Available() {
		return nil, engine.SkipStep("state injection unavailable")
	}
	msg, err := buildMessage(step.Params)
	if err != nil {
		return nil, err
	}
	if err := r.injector.Inject(ctx, msg); err != nil {
		return nil, fmt.Errorf("inject %s: %w", msg, err)
	}
	r.logger.Debug("injected", "message", msg.String())
	return map[string]any{KeyInjected: msg.Name}, nil
}

func (r *Runner) handleWait(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	d, err := engine.WaitDuration(step.Params, r.pics)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: duration_seconds, duration_ms or pixit", errMissingParam)
	}
	if err := contextSleep(ctx, d); err != nil {
		return nil, err
	}
	return map[string]any{KeyWaited: d.Milliseconds()}, nil
}

// observeStep records the duration of every step that ran.
func (r *Runner) observeStep(_ *loader.TestCase, sr *engine.StepResult) {
	if sr.Skipped {
		return
	}
	r.metrics.ObserveStep(sr.Step.Action, sr.Duration)
}

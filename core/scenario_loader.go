package core

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/meridiansim/plant-startup-simulator/model"
)

// ScriptAction is one timed entry in a startup script: an operator console
// action or a heat-sink boundary change to apply once simulation time
// reaches AtHours.
type ScriptAction struct {
	AtHours float64 `json:"at_hours"`
	Action  string  `json:"action"`
	// Value carries the numeric payload for boundary actions; ignored for
	// switch-type actions.
	Value float64 `json:"value,omitempty"`
}

// Script action names accepted by LoadStartupScript.
const (
	ActionStartPumps       = "start_pumps"
	ActionPumpsRunning     = "pumps_running"
	ActionIsolateRHR       = "isolate_rhr"
	ActionBypassTavgBlock  = "bypass_low_tavg_block"
	ActionHeatSinkUp       = "heat_sink_available"
	ActionHeatSinkDown     = "heat_sink_lost"
	ActionFeedFlowLbmPerHr = "feed_flow_lbm_per_hr"
	ActionFeedTempF        = "feed_temp_f"
)

// StartupScript is a time-ordered list of operator and boundary actions
// loaded from JSON. It is consumed incrementally from a run loop.
type StartupScript struct {
	actions []ScriptAction
	next    int
}

type startupScriptJSON struct {
	Actions []ScriptAction `json:"actions"`
}

// LoadStartupScript reads a JSON startup script from r and validates the
// action names. Actions are sorted by activation time; entries sharing a
// time keep their file order.
func LoadStartupScript(r io.Reader) (*StartupScript, error) {
	var payload startupScriptJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("startup script: decode failed: %w", err)
	}

	for i, a := range payload.Actions {
		if a.AtHours < 0 {
			return nil, fmt.Errorf("startup script: action %d at negative time %v", i, a.AtHours)
		}
		switch strings.ToLower(strings.TrimSpace(a.Action)) {
		case ActionStartPumps, ActionPumpsRunning, ActionIsolateRHR, ActionBypassTavgBlock,
			ActionHeatSinkUp, ActionHeatSinkDown, ActionFeedFlowLbmPerHr, ActionFeedTempF:
			payload.Actions[i].Action = strings.ToLower(strings.TrimSpace(a.Action))
		default:
			return nil, fmt.Errorf("startup script: unknown action %q", a.Action)
		}
	}

	sort.SliceStable(payload.Actions, func(i, j int) bool {
		return payload.Actions[i].AtHours < payload.Actions[j].AtHours
	})
	return &StartupScript{actions: payload.Actions}, nil
}

// Remaining reports how many actions have not yet been applied.
func (s *StartupScript) Remaining() int {
	return len(s.actions) - s.next
}

// ApplyThrough applies every action due at or before simHours to the given
// operator inputs and heat-sink boundary, returning the names of the actions
// applied. Each action fires once.
func (s *StartupScript) ApplyThrough(simHours float64, op *model.OperatorInputs, sink *model.HeatSinkBoundary) []string {
	var applied []string
	for s.next < len(s.actions) && s.actions[s.next].AtHours <= simHours {
		a := s.actions[s.next]
		s.next++

		switch a.Action {
		case ActionStartPumps:
			op.StartPumps = true
		case ActionPumpsRunning:
			op.PumpsConfirmedRunning = true
		case ActionIsolateRHR:
			op.IsolateRHR = true
		case ActionBypassTavgBlock:
			op.BypassLowTavgBlock = true
		case ActionHeatSinkUp:
			sink.Available = true
		case ActionHeatSinkDown:
			sink.Available = false
		case ActionFeedFlowLbmPerHr:
			sink.ReturnFlowLbmPerHr = a.Value
		case ActionFeedTempF:
			sink.ReturnTempF = a.Value
		}
		applied = append(applied, a.Action)
	}
	return applied
}

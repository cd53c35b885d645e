// Package flagstate contains the snapshot type returned by the client's AllFlagsState
// method: the values of every flag for a user, plus the metadata a front end or edge
// service needs to bootstrap its own SDK.
package flagstate

import (
	"encoding/json"

	"github.com/featurebridge/go-server-sdk/fbreason"
	"github.com/featurebridge/go-server-sdk/fbvalue"
)

// Option is an optional parameter for AllFlagsState.
type Option string

const (
	// ClientSideOnly restricts the snapshot to flags marked as available to
	// client-side SDKs.
	ClientSideOnly Option = "ClientSideOnly"
	// WithReasons includes evaluation reasons in the flag metadata.
	WithReasons Option = "WithReasons"
	// DetailsOnlyForTrackedFlags omits metadata (reason, version, flag details) for
	// flags that do not require full event tracking, reducing the payload size.
	DetailsOnlyForTrackedFlags Option = "DetailsOnlyForTrackedFlags"
)

// HasOption tests whether an option is in a list of options.
func HasOption(options []Option, option Option) bool {
	for _, o := range options {
		if o == option {
			return true
		}
	}
	return false
}

// FlagState is the snapshot's per-flag metadata.
type FlagState struct {
	// Value is the result of evaluating the flag for the user.
	Value fbvalue.Value
	// Variation is the variation index, or fbreason.NoVariation.
	Variation int
	// Version is the flag version at the time of the snapshot.
	Version int
	// Reason is the evaluation reason, if reasons were requested.
	Reason fbreason.EvaluationReason
	// TrackEvents is true if full event data should be recorded for this flag.
	TrackEvents bool
	// TrackReason is true if the reason must be included in event data even when
	// reasons were not requested by the caller.
	TrackReason bool
	// DebugEventsUntilDate, if nonzero, is the millisecond timestamp until which debug
	// events are enabled for this flag.
	DebugEventsUntilDate uint64
	// OmitDetails is true if metadata was suppressed by DetailsOnlyForTrackedFlags.
	OmitDetails bool
}

// AllFlags is an immutable snapshot of all flag values for a user. Construct it with
// NewAllFlagsBuilder; the zero value is an invalid snapshot.
type AllFlags struct {
	flags map[string]FlagState
	valid bool
}

// IsValid returns true if the snapshot was produced successfully. It is false if the
// client was not initialized or the user was not specified.
func (a AllFlags) IsValid() bool {
	return a.valid
}

// GetFlag looks up one flag's state. The second return value is false if the flag was
// not in the snapshot.
func (a AllFlags) GetFlag(flagKey string) (FlagState, bool) {
	f, ok := a.flags[flagKey]
	return f, ok
}

// GetValue returns one flag's value from the snapshot, or Null() if absent.
func (a AllFlags) GetValue(flagKey string) fbvalue.Value {
	return a.flags[flagKey].Value
}

// ToValuesMap returns a plain map of flag keys to flag values.
func (a AllFlags) ToValuesMap() map[string]fbvalue.Value {
	ret := make(map[string]fbvalue.Value, len(a.flags))
	for key, flag := range a.flags {
		ret[key] = flag.Value
	}
	return ret
}

type flagMetadataForMarshaling struct {
	Variation            *int                       `json:"variation,omitempty"`
	Version              *int                       `json:"version,omitempty"`
	Reason               *fbreason.EvaluationReason `json:"reason,omitempty"`
	TrackEvents          bool                       `json:"trackEvents,omitempty"`
	TrackReason          bool                       `json:"trackReason,omitempty"`
	DebugEventsUntilDate uint64                     `json:"debugEventsUntilDate,omitempty"`
}

// MarshalJSON produces the snapshot's public JSON envelope: every flag's value keyed by
// flag key, plus "$flagsState" with the per-flag metadata and "$valid".
func (a AllFlags) MarshalJSON() ([]byte, error) {
	all := make(map[string]json.RawMessage, len(a.flags)+2)
	state := make(map[string]flagMetadataForMarshaling, len(a.flags))
	for key, flag := range a.flags {
		valueJSON, err := flag.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		all[key] = valueJSON

		meta := flagMetadataForMarshaling{
			TrackEvents:          flag.TrackEvents,
			TrackReason:          flag.TrackReason,
			DebugEventsUntilDate: flag.DebugEventsUntilDate,
		}
		if flag.Variation != fbreason.NoVariation {
			v := flag.Variation
			meta.Variation = &v
		}
		if !flag.OmitDetails {
			version := flag.Version
			meta.Version = &version
			if flag.Reason.GetKind() != "" {
				reason := flag.Reason
				meta.Reason = &reason
			}
		}
		state[key] = meta
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	all["$flagsState"] = stateJSON
	validJSON, _ := json.Marshal(a.valid)
	all["$valid"] = validJSON
	return json.Marshal(all)
}

// UnmarshalJSON reads a snapshot back from its public JSON envelope, so that an edge
// service can reconstitute a snapshot produced elsewhere.
func (a *AllFlags) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	ret := AllFlags{flags: make(map[string]FlagState)}
	if validJSON, ok := all["$valid"]; ok {
		if err := json.Unmarshal(validJSON, &ret.valid); err != nil {
			return err
		}
	}

	state := make(map[string]flagMetadataForMarshaling)
	if stateJSON, ok := all["$flagsState"]; ok {
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return err
		}
	}

	for key, meta := range state {
		flag := FlagState{
			Variation:            fbreason.NoVariation,
			TrackEvents:          meta.TrackEvents,
			TrackReason:          meta.TrackReason,
			DebugEventsUntilDate: meta.DebugEventsUntilDate,
			OmitDetails:          meta.Version == nil,
		}
		if valueJSON, ok := all[key]; ok {
			flag.Value = fbvalue.Parse(valueJSON)
		}
		if meta.Variation != nil {
			flag.Variation = *meta.Variation
		}
		if meta.Version != nil {
			flag.Version = *meta.Version
		}
		if meta.Reason != nil {
			flag.Reason = *meta.Reason
		}
		ret.flags[key] = flag
	}

	*a = ret
	return nil
}

// AllFlagsBuilder builds an AllFlags snapshot.
type AllFlagsBuilder struct {
	state   AllFlags
	options []Option
}

// NewAllFlagsBuilder creates a builder for a valid snapshot with the given options.
func NewAllFlagsBuilder(options ...Option) *AllFlagsBuilder {
	return &AllFlagsBuilder{
		state:   AllFlags{flags: make(map[string]FlagState), valid: true},
		options: options,
	}
}

// AddFlag adds a flag's state to the snapshot, applying the builder's options.
func (b *AllFlagsBuilder) AddFlag(flagKey string, flag FlagState) *AllFlagsBuilder {
	// Metadata is kept if the caller wants it for all flags, or if the flag is being
	// tracked in a way that requires it regardless.
	if HasOption(b.options, DetailsOnlyForTrackedFlags) &&
		!flag.TrackEvents && !flag.TrackReason && flag.DebugEventsUntilDate == 0 {
		flag.OmitDetails = true
	}
	if !HasOption(b.options, WithReasons) && !flag.TrackReason {
		flag.Reason = fbreason.EvaluationReason{}
	}
	b.state.flags[flagKey] = flag
	return b
}

// Build returns the snapshot. The builder can continue to be used afterward.
func (b *AllFlagsBuilder) Build() AllFlags {
	flags := make(map[string]FlagState, len(b.state.flags))
	for key, flag := range b.state.flags {
		flags[key] = flag
	}
	return AllFlags{flags: flags, valid: b.state.valid}
}

// MakeInvalidSnapshot returns the snapshot used when state could not be captured; it
// has no flags and IsValid is false.
func MakeInvalidSnapshot() AllFlags {
	return AllFlags{}
}

package model

// EffectKind tags which variant an Effect holds.
type EffectKind uint8

const (
	// EffectNewVertex carries a freshly created, locally-valid signed
	// wire-vote to be gossiped and added to local state.
	EffectNewVertex EffectKind = iota
	// EffectScheduleTimer requests that HandleTimer(t) be invoked no
	// earlier than timestamp t.
	EffectScheduleTimer
	// EffectRequestNewBlock requests that the value provider eventually
	// invoke Propose(value, ctx).
	EffectRequestNewBlock
)

// Effect is a tagged value with exactly three variants: NewVertex,
// ScheduleTimer, RequestNewBlock. The scheduler never emits any other
// kind of side effect.
type Effect struct {
	Kind EffectKind

	Vote  SignedWireVote // valid when Kind == EffectNewVertex
	Timer Timestamp      // valid when Kind == EffectScheduleTimer
	Ctx   BlockContext   // valid when Kind == EffectRequestNewBlock
}

// NewVertex builds an EffectNewVertex effect.
func NewVertex(v SignedWireVote) Effect {
	return Effect{Kind: EffectNewVertex, Vote: v}
}

// ScheduleTimer builds an EffectScheduleTimer effect.
func ScheduleTimer(t Timestamp) Effect {
	return Effect{Kind: EffectScheduleTimer, Timer: t}
}

// RequestNewBlock builds an EffectRequestNewBlock effect.
func RequestNewBlock(ctx BlockContext) Effect {
	return Effect{Kind: EffectRequestNewBlock, Ctx: ctx}
}

package runloop

// SteeringKind names one out-of-band control command from the user.
type SteeringKind string

const (
	SteerStop              SteeringKind = "stop"
	SteerPause             SteeringKind = "pause"
	SteerResume            SteeringKind = "resume"
	SteerInjectUserMessage SteeringKind = "inject_user_message"
	SteerSwitchMode        SteeringKind = "switch_mode"
	SteerCancelCurrentTool SteeringKind = "cancel_current_tool"
)

// SteeringCommand is one message on the Session Controller's steering
// channel. Commands are polled at suspension points, never mid-syscall;
// cancellation of in-flight work goes through the shared context.
type SteeringCommand struct {
	Kind SteeringKind
	Text string // InjectUserMessage payload
	Mode Mode   // SwitchMode target
}

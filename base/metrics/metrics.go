package metrics

const (
	ControlCyclesH           = "The total number of control cycles executed"
	ControlCyclesN           = "firebot_control_cycles"
	ControlCyclesSkippedH    = "The total number of control cycles skipped because of incomplete inputs"
	ControlCyclesSkippedN    = "firebot_control_cycles_skipped"
	ControlSensorFailuresH   = "The total number of failed sensor reads"
	ControlSensorFailuresN   = "firebot_control_sensor_failures"
	ControlUndefinedOutputsH = "The total number of motor outputs replaced by the safe duty because no rule fired"
	ControlUndefinedOutputsN = "firebot_control_undefined_outputs"

	ControlLeftDutyH   = "The current left motor duty cycle in percent"
	ControlLeftDutyN   = "firebot_control_left_duty"
	ControlRightDutyH  = "The current right motor duty cycle in percent"
	ControlRightDutyN  = "firebot_control_right_duty"
	ControlProximityH  = "The current proximity input in cm"
	ControlProximityN  = "firebot_control_proximity"
	ControlPumpActiveH = "Whether the water pump is currently active (0 or 1)"
	ControlPumpActiveN = "firebot_control_pump_active"
	ControlSafeStateH  = "Whether the loop is currently in safe state (0 or 1)"
	ControlSafeStateN  = "firebot_control_safe_state"

	TelemetryPublishFailuresH = "The total number of cycle reports that could not be published"
	TelemetryPublishFailuresN = "firebot_telemetry_publish_failures"
)

package fsm

const (
	MachineStateIdle          = "idle"
	MachineStateChooseProduct = "choose_product"
	MachineStateProcessing    = "processing"
)

const (
	MachineEventAssign   = "assign"
	MachineEventPurchase = "purchase"
	MachineEventDeliver  = "deliver"
	MachineEventReset    = "reset"
)

package domain

// Command event names of the closed protocol.
const (
	EventAddDynamicItem    = "addDynamicItem"
	EventLoadDynamicItem   = "loadDynamicItem"
	EventSaveDynamicItem   = "saveDynamicItem"
	EventRemoveDynamicItem = "removeDynamicItem"
	EventMoveDynamicItem   = "moveDynamicItem"
	EventRunStep           = "runStep"
	EventSavePipeline      = "savePipeline"
	EventLoadPipeline      = "loadPipeline"
	EventInitPipeline      = "initPipeline"
	EventUpdateInputs      = "updateInputs"
)

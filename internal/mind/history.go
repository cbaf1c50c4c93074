package mind

// Status is the outcome of one dispatch attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

func (s Status) Valid() bool { return s == StatusSuccess || s == StatusFail }

// Record is one history entry for a (mind, trigger key) attempt.
// Trigger is empty for records inserted through the management API.
type Record struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	ExecutionTime string `json:"executionTime"`
	Status        Status `json:"status"`
	Trigger       string `json:"trigger,omitempty"`
}

// History is the stored history document, newest first.
type History struct {
	List []Record `json:"his_list"`
}

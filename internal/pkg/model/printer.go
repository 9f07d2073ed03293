package model

// PrinterEvent is the name of an OctoPrint lifecycle event.
type PrinterEvent string

func (pe PrinterEvent) String() string {
	return string(pe)
}

const (
	EventPrintStarted PrinterEvent = "PrintStarted"
	EventPrintDone    PrinterEvent = "PrintDone"
	EventPrintFailed  PrinterEvent = "PrintFailed"
)

type TemperatureReading struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// Temperatures holds the heater readings of the printer. A nil reading means the
// printer does not report that heater.
type Temperatures struct {
	Bed   *TemperatureReading `json:"bed,omitempty"`
	Tool0 *TemperatureReading `json:"tool0,omitempty"`
}

// PrinterState carries the job related flags of the printer.
type PrinterState struct {
	Text        string `json:"text"`
	Operational bool   `json:"operational"`
	Printing    bool   `json:"printing"`
	Pausing     bool   `json:"pausing"`
	Paused      bool   `json:"paused"`
	Cancelling  bool   `json:"cancelling"`
}

func (ps PrinterState) IsPrinting() bool   { return ps.Printing }
func (ps PrinterState) IsPausing() bool    { return ps.Pausing }
func (ps PrinterState) IsPaused() bool     { return ps.Paused }
func (ps PrinterState) IsCancelling() bool { return ps.Cancelling }

// Busy reports whether cutting the power now would interrupt a job, and why.
func (ps PrinterState) Busy() (bool, string) {
	switch {
	case ps.IsPrinting():
		return true, "printing"
	case ps.IsPausing() || ps.IsPaused():
		return true, "paused"
	case ps.IsCancelling():
		return true, "cancelling"
	}
	return false, ""
}

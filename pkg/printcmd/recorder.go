package printcmd

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// Recorder is an in-memory Sink that validates and buffers every command.
// It is the mock printer used by tests and by the API's interpret route.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(c Command) error {
	if err := Check(c); err != nil {
		return err
	}
	r.mu.Lock()
	r.commands = append(r.commands, c)
	r.mu.Unlock()
	return nil
}

// PrintText records a text line
func (r *Recorder) PrintText(content string, style Style) error {
	return r.record(PrintText(content, style))
}

// PrintBarcode records a barcode
func (r *Recorder) PrintBarcode(data string, t BarcodeType) error {
	return r.record(PrintBarcode(data, t))
}

// PrintQRCode records a QR code
func (r *Recorder) PrintQRCode(data string) error {
	return r.record(PrintQRCode(data))
}

// SetAlignment records an alignment change
func (r *Recorder) SetAlignment(a Alignment) error {
	return r.record(SetAlignment(a))
}

// FeedLines records a paper feed
func (r *Recorder) FeedLines(count int) error {
	return r.record(FeedLines(count))
}

// CutPaper records a cut
func (r *Recorder) CutPaper() error {
	return r.record(CutPaper())
}

// Commands returns a copy of the recorded sequence
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Len returns the number of recorded commands
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

// Reset clears the buffer
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}

// Marshal encodes a command sequence in its JSON wire form
func Marshal(cmds []Command) ([]byte, error) {
	if cmds == nil {
		cmds = []Command{}
	}
	return json.Marshal(cmds)
}

// Unmarshal decodes and validates a JSON command sequence
func Unmarshal(data []byte) ([]Command, error) {
	var cmds []Command
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, errors.Wrap(err, "failed to decode commands")
	}
	for i, c := range cmds {
		if err := Check(c); err != nil {
			return nil, errors.Wrapf(err, "command[%d]", i)
		}
	}
	return cmds, nil
}

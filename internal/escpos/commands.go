package escpos

// Command is a fixed ESC/POS control sequence
type Command struct {
	name string
	seq  string
}

// Control prefixes
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// Format commands understood by the supported printers
var (
	BoldOn      = Command{"BOLD_ON", "\x1b\x45\x01"}
	BoldOff     = Command{"BOLD_OFF", "\x1b\x45\x00"}
	Center      = Command{"CENTER", "\x1b\x61\x01"}
	Left        = Command{"LEFT", "\x1b\x61\x00"}
	Right       = Command{"RIGHT", "\x1b\x61\x02"}
	DoubleWidth = Command{"DOUBLE_WIDTH", "\x1b\x21\x10"}
	NormalWidth = Command{"NORMAL_WIDTH", "\x1b\x21\x00"}
	CutPaper    = Command{"CUT_PAPER", "\x1d\x56\x42\x00"}
	Init        = Command{"INIT", "\x1b\x40"}
)

var commands = []Command{BoldOn, BoldOff, Center, Left, Right, DoubleWidth, NormalWidth, CutPaper, Init}

// Bytes returns a fresh copy of the sequence
func (c Command) Bytes() []byte {
	return []byte(c.seq)
}

func (c Command) Len() int {
	return len(c.seq)
}

func (c Command) String() string {
	return c.name
}

// Lookup finds a command by its table name (e.g. "BOLD_ON")
func Lookup(name string) (Command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Commands returns the full command table
func Commands() []Command {
	out := make([]Command, len(commands))
	copy(out, commands)
	return out
}

// Alignment is an ESC a justification mode
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

func (a Alignment) command() Command {
	switch a {
	case AlignCenter:
		return Center
	case AlignRight:
		return Right
	default:
		return Left
	}
}

func (a Alignment) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return "left"
	}
}

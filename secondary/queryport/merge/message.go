package merge

type MessageType byte

const (
	MessageRow MessageType = iota
	MessageError
	MessageDone
)

func (t MessageType) String() string {
	switch t {
	case MessageRow:
		return "Row"
	case MessageError:
		return "Error"
	case MessageDone:
		return "Done"
	}
	return "Unknown"
}

// Message travels from a feed to the merger. A feed sends any number of
// Row messages followed by exactly one Error or Done.
type Message struct {
	Type MessageType
	Row  Row
	Err  error
}

func rowMessage(row Row) Message {
	return Message{Type: MessageRow, Row: row}
}

func errorMessage(err error) Message {
	return Message{Type: MessageError, Err: err}
}

func doneMessage() Message {
	return Message{Type: MessageDone}
}

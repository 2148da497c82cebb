package mixer

// snapshotTracker follows which desk snapshot is loaded and what it is called.
type snapshotTracker struct {
	index int
	name  string
}

func newSnapshotTracker() snapshotTracker {
	return snapshotTracker{index: -1}
}

// snapshotAction tells the engine what to do after observing a message.
type snapshotAction struct {
	queryNames  bool
	nameChanged bool
}

// observe updates the tracker from one desk message.
func (t *snapshotTracker) observe(msg Message) snapshotAction {
	switch {
	case msg.Address == currentSnapshotAddress:
		index, ok := msg.Int(0)
		if !ok {
			return snapshotAction{}
		}
		t.index = index
		if index < 0 {
			// The loaded snapshot was deleted.
			t.name = ""
			return snapshotAction{nameChanged: true}
		}
		return snapshotAction{queryNames: true}

	case msg.Address == snapshotNameAddress:
		index, ok := msg.Int(0)
		if !ok || index != t.index || len(msg.Args) < 2 {
			return snapshotAction{}
		}
		name, ok := msg.Text(len(msg.Args) - 1)
		if !ok {
			return snapshotAction{}
		}
		t.name = name
		return snapshotAction{nameChanged: true}
	}

	if indices, ok := renameSnapshotPattern.Match(msg.Address); ok && indices[0] == t.index {
		name, ok := msg.Text(0)
		if !ok {
			return snapshotAction{}
		}
		t.name = name
		return snapshotAction{nameChanged: true}
	}

	return snapshotAction{}
}

package meter

// Fresh returns a zeroed ledger dated today.
func Fresh(c Clock) Ledger {
	return Ledger{Date: CurrentDateKey(c)}
}

// EnsureFreshDay returns l unchanged when it is dated today, otherwise a zeroed
// ledger dated today. The stored date is only ever compared for equality, so a
// clock that moves backwards causes another reset rather than a stuck ledger.
func EnsureFreshDay(l Ledger, c Clock) Ledger {
	today := CurrentDateKey(c)
	if l.Date == today {
		return l
	}
	return Ledger{Date: today}
}

// RecordMessage rolls l over if needed and counts one chat message.
func RecordMessage(l Ledger, c Clock) Ledger {
	l = EnsureFreshDay(l, c)
	l.MessageCount++
	return l
}

// RecordAction rolls l over if needed and counts one privileged action.
func RecordAction(l Ledger, c Clock) Ledger {
	l = EnsureFreshDay(l, c)
	l.ActionCount++
	return l
}

// Record dispatches to RecordMessage or RecordAction. Unknown kinds only roll
// the ledger over.
func Record(l Ledger, k Kind, c Clock) Ledger {
	switch k {
	case KindMessage:
		return RecordMessage(l, c)
	case KindAction:
		return RecordAction(l, c)
	default:
		return EnsureFreshDay(l, c)
	}
}

// Count returns the counter for k.
func (l Ledger) Count(k Kind) int64 {
	switch k {
	case KindMessage:
		return l.MessageCount
	case KindAction:
		return l.ActionCount
	default:
		return 0
	}
}

// IsZero reports whether no consumption has been recorded.
func (l Ledger) IsZero() bool {
	return l.MessageCount == 0 && l.ActionCount == 0
}

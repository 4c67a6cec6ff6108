package adb

// Namehook ties one ADB name to one ADB entry it resolved to. Links run
// one way only, name -> entry: an Entry keeps no list of the namehooks
// that point at it, so there is no reference cycle to break.
type Namehook struct {
	Entry *Entry
	next  *Namehook
}

// namehookList is a small intrusive singly-linked list of namehooks,
// mutated only while the owning Name's lock is held.
type namehookList struct {
	head *Namehook
}

func (l *namehookList) push(e *Entry) {
	l.head = &Namehook{Entry: e, next: l.head}
}

func (l *namehookList) clear() {
	l.head = nil
}

func (l *namehookList) walk(visit func(*Entry)) {
	for h := l.head; h != nil; h = h.next {
		visit(h.Entry)
	}
}

func (l *namehookList) empty() bool { return l.head == nil }

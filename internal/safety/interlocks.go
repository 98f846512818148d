package safety

// Interlocks is a bitmask of satisfied conditions checked against a
// required mask. Bit i set means condition i holds.
type Interlocks struct {
	bits     uint64
	required uint64
}

func NewInterlocks(required uint64) *Interlocks {
	return &Interlocks{required: required}
}

func (l *Interlocks) SetRequired(mask uint64) { l.required = mask }
func (l *Interlocks) Set(mask uint64)         { l.bits |= mask }
func (l *Interlocks) Clear(mask uint64)       { l.bits &^= mask }

func (l *Interlocks) Write(mask uint64, on bool) {
	if on {
		l.Set(mask)
	} else {
		l.Clear(mask)
	}
}

func (l *Interlocks) OK() bool         { return l.bits&l.required == l.required }
func (l *Interlocks) Bits() uint64     { return l.bits }
func (l *Interlocks) Required() uint64 { return l.required }

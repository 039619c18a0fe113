package printer

import (
	"bytes"
	"strings"
)

// ESC/POS control bytes.
const (
	esc byte = 0x1B
	gs  byte = 0x1D
	lf  byte = 0x0A
)

var (
	cmdInit        = []byte{esc, '@'}
	cmdAlignLeft   = []byte{esc, 'a', 0}
	cmdAlignCenter = []byte{esc, 'a', 1}
	cmdBoldOn      = []byte{esc, 'E', 1}
	cmdBoldOff     = []byte{esc, 'E', 0}
	cmdSizeNormal  = []byte{gs, '!', 0x00}
	cmdSizeTall    = []byte{gs, '!', 0x01}
	cmdSizeDouble  = []byte{gs, '!', 0x11}
	cmdFeed        = []byte{esc, 'd', 3}
	cmdPartialCut  = []byte{gs, 'V', 66, 0}
)

type tagStyle struct {
	open  [][]byte
	close [][]byte
}

var tagStyles = map[string]tagStyle{
	"C":  {open: [][]byte{cmdAlignCenter}, close: [][]byte{cmdAlignLeft}},
	"B":  {open: [][]byte{cmdBoldOn}, close: [][]byte{cmdBoldOff}},
	"CB": {open: [][]byte{cmdAlignCenter, cmdBoldOn, cmdSizeDouble}, close: [][]byte{cmdSizeNormal, cmdBoldOff, cmdAlignLeft}},
	"CM": {open: [][]byte{cmdAlignCenter, cmdSizeTall}, close: [][]byte{cmdSizeNormal, cmdAlignLeft}},
}

// Encoder turns ticket markup into ESC/POS bytes.
type Encoder struct {
	cut bool
}

// NewEncoder builds an encoder; cut appends a partial paper cut.
func NewEncoder(cut bool) *Encoder {
	return &Encoder{cut: cut}
}

// Encode wraps text in printer init, translates known tags and ends with a
// feed and optional cut. Unknown tags are printed verbatim.
func (e *Encoder) Encode(text string) []byte {
	var buf bytes.Buffer
	buf.Write(cmdInit)

	for len(text) > 0 {
		i := strings.IndexByte(text, '<')
		if i < 0 {
			buf.WriteString(text)
			break
		}
		buf.WriteString(text[:i])
		text = text[i:]

		j := strings.IndexByte(text, '>')
		if j < 0 {
			buf.WriteString(text)
			break
		}
		name := text[1:j]
		closing := strings.HasPrefix(name, "/")
		style, ok := tagStyles[strings.TrimPrefix(name, "/")]
		if !ok {
			buf.WriteByte('<')
			text = text[1:]
			continue
		}
		cmds := style.open
		if closing {
			cmds = style.close
		}
		for _, c := range cmds {
			buf.Write(c)
		}
		text = text[j+1:]
	}

	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != lf {
		buf.WriteByte(lf)
	}
	buf.Write(cmdFeed)
	if e != nil && e.cut {
		buf.Write(cmdPartialCut)
	}
	return buf.Bytes()
}

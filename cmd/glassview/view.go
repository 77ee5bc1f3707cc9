package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dacapoday/glass/table"
)

type item struct {
	key []byte
	val []byte
}

// viewer pages through one table revision. The cursor is re-seeked to the
// first visible key after every movement.
type viewer struct {
	name    string
	cursor  *table.Cursor
	items   []item
	width   int
	height  int
	atStart bool // no more items before first
	atEnd   bool // no more items after last
	status  string
}

func runInteractive(path string, opts table.Options) {
	t := openTable(path, opts)
	defer t.Close()

	c, err := t.Cursor()
	if err != nil {
		fatal(err)
	}
	defer c.Close()
	c.Next()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fatal(err)
	}
	defer term.Restore(fd, oldState)

	v := &viewer{
		name:   fmt.Sprintf("%s @%d", t.Name(), c.Revision()),
		cursor: c,
	}
	v.updateSize()
	v.load()

	fmt.Print("\033[?25l\033[2J")             // hide cursor, clear screen once
	defer fmt.Print("\033[?25h\033[2J\033[H") // show cursor, clear screen

	reader := bufio.NewReader(os.Stdin)
	for {
		if v.updateSize() {
			v.load()
		}
		v.render()

		b, err := reader.ReadByte()
		if err != nil {
			return
		}
		v.status = ""

		switch b {
		case 'q', 3, 27: // q, Ctrl+C, Esc
			if b == 27 && reader.Buffered() > 0 {
				v.escape(reader)
				continue
			}
			return
		case 'j':
			v.down()
		case 'k':
			v.up()
		case 'g':
			v.first()
		case 'G':
			v.last()
		case '/':
			v.search(reader)
		}
	}
}

func (v *viewer) escape(reader *bufio.Reader) {
	if b, _ := reader.ReadByte(); b != '[' {
		return
	}
	b, _ := reader.ReadByte()
	switch b {
	case 'A':
		v.up()
	case 'B':
		v.down()
	case '5':
		reader.ReadByte()
		v.pageUp()
	case '6':
		reader.ReadByte()
		v.pageDown()
	}
}

// updateSize checks terminal size and returns true if changed.
func (v *viewer) updateSize() bool {
	w, h, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		w, h = 80, 24
	}
	if w == v.width && h == v.height {
		return false
	}
	v.width, v.height = w, h
	return true
}

func (v *viewer) lines() int {
	return max(v.height-4, 1) // title + separator + separator + status
}

func (v *viewer) current() item {
	return item{
		key: bytes.Clone(v.cursor.Key()),
		val: bytes.Clone(v.cursor.Value()),
	}
}

// load fills the screen starting at the cursor position.
func (v *viewer) load() {
	v.items = v.items[:0]
	v.atStart, v.atEnd = false, false

	if !v.cursor.Valid() {
		v.cursor.Rewind()
		if !v.cursor.Next() {
			v.atStart, v.atEnd = true, true
			v.report()
			return
		}
	}

	for len(v.items) < v.lines() && v.cursor.Valid() {
		v.items = append(v.items, v.current())
		if !v.cursor.Next() {
			v.atEnd = true
		}
	}

	v.cursor.FindEntryGE(v.items[0].key)
	if !v.cursor.Prev() {
		v.atStart = true
	}
	v.cursor.FindEntryGE(v.items[0].key)
	v.report()
}

func (v *viewer) down() {
	if len(v.items) == 0 {
		return
	}
	v.cursor.FindEntryGE(v.items[len(v.items)-1].key)
	if v.cursor.Next() {
		v.items = append(v.items[1:], v.current())
		v.atStart = false
		if !v.cursor.Next() {
			v.atEnd = true
		}
	} else if len(v.items) > 1 {
		v.items = v.items[1:]
		v.atStart = false
		v.atEnd = true
	}
	v.cursor.FindEntryGE(v.items[0].key)
	v.report()
}

func (v *viewer) up() {
	if v.atStart || len(v.items) == 0 {
		return
	}
	v.cursor.FindEntryGE(v.items[0].key)
	if v.cursor.Prev() {
		prev := v.current()
		if len(v.items) >= v.lines() {
			v.items = v.items[:len(v.items)-1]
			v.atEnd = false
		}
		v.items = append([]item{prev}, v.items...)
		if !v.cursor.Prev() {
			v.atStart = true
		}
	} else {
		v.atStart = true
	}
	v.cursor.FindEntryGE(v.items[0].key)
	v.report()
}

func (v *viewer) pageDown() {
	for range v.lines() - 1 {
		v.down()
	}
}

func (v *viewer) pageUp() {
	for range v.lines() - 1 {
		v.up()
	}
}

func (v *viewer) first() {
	v.cursor.Rewind()
	v.cursor.Next()
	v.load()
}

func (v *viewer) last() {
	if v.cursor.SeekLast() {
		for range v.lines() - 1 {
			if !v.cursor.Prev() {
				v.cursor.Rewind()
				break
			}
		}
	}
	v.load()
}

func (v *viewer) search(reader *bufio.Reader) {
	fmt.Print("\033[?25h") // show cursor
	fmt.Printf("\033[%d;1H\033[K/", v.height)

	var input []byte
	for {
		b, err := reader.ReadByte()
		if err != nil {
			break
		}
		if b == 27 || b == 3 { // Esc or Ctrl+C
			fmt.Print("\033[?25l")
			return
		}
		if b == 13 || b == 10 {
			break
		}
		if b == 127 || b == 8 {
			if len(input) > 0 {
				input = input[:len(input)-1]
				fmt.Print("\b \b")
			}
			continue
		}
		if b >= 32 && b < 127 {
			input = append(input, b)
			fmt.Print(string(b))
		}
	}
	fmt.Print("\033[?25l")
	if len(input) == 0 {
		return
	}

	exact := v.cursor.FindEntryGE(input)
	if !v.cursor.Valid() {
		v.status = "not found"
		if len(v.items) > 0 {
			v.cursor.FindEntryGE(v.items[0].key)
		}
		return
	}
	v.load()
	if exact {
		v.status = fmt.Sprintf("found: %s", display(input, 20))
	} else {
		v.status = fmt.Sprintf("jumped past: %s", display(input, 20))
	}
}

// report surfaces a cursor read error on the status line.
func (v *viewer) report() {
	if err := v.cursor.Err(); err != nil {
		v.status = err.Error()
	}
}

func (v *viewer) render() {
	var b strings.Builder

	b.WriteString("\033[H")
	fmt.Fprintf(&b, "[ glassview: %s ]\033[K\r\n", v.name)
	b.WriteString(strings.Repeat("─", v.width))
	b.WriteString("\033[K\r\n")

	keyWidth := 32
	valWidth := max(v.width-keyWidth-4, 20)

	for i := range v.lines() {
		if i < len(v.items) {
			it := v.items[i]
			b.WriteString(display(it.key, keyWidth))
			b.WriteString(": ")
			b.WriteString(display(it.val, valWidth))
		} else {
			b.WriteString("~")
		}
		b.WriteString("\033[K\r\n")
	}

	b.WriteString(strings.Repeat("─", v.width))
	b.WriteString("\033[K\r\n")

	pos := ""
	switch {
	case v.atStart && v.atEnd:
		pos = "[all]"
	case v.atStart:
		pos = "[top]"
	case v.atEnd:
		pos = "[end]"
	}

	if v.status != "" {
		b.WriteString(" " + v.status + " " + pos)
	} else {
		b.WriteString(" j/k:scroll g/G:jump /:search q:quit " + pos)
	}
	b.WriteString("\033[K")

	fmt.Print(b.String())
}

package devicedb

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/device"
)

type reader struct {
	sc       *bufio.Scanner
	filename string
	line     int
	dev      *device.Device
	arrays   [][]device.WireConnection
	indexed  bool
}

// Read decodes a device database. filename is used in error positions.
func Read(r io.Reader, filename string) (*device.Device, error) {
	bz, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2 reader")
	}
	defer bz.Close()
	sc := bufio.NewScanner(bz)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	rd := &reader{sc: sc, filename: filename}
	if err := rd.read(); err != nil {
		return nil, err
	}
	return rd.dev, nil
}

// Load reads the device database at path.
func Load(path string) (*device.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening device database")
	}
	defer f.Close()
	return Read(f, path)
}

func (rd *reader) errorf(reason string) error {
	return &device.MalformedInputError{
		Location: device.Location{File: rd.filename, Line: rd.line},
		Kind:     "device database",
		Name:     "record",
		Reason:   reason,
	}
}

func (rd *reader) next() (string, error) {
	if !rd.sc.Scan() {
		if err := rd.sc.Err(); err != nil {
			return "", errors.Wrapf(err, "%s: reading line %d", rd.filename, rd.line+1)
		}
		return "", rd.errorf("unexpected end of data")
	}
	rd.line++
	return rd.sc.Text(), nil
}

func (rd *reader) fields(want string, n int) ([]string, error) {
	line, err := rd.next()
	if err != nil {
		return nil, err
	}
	f := strings.Fields(line)
	if len(f) != n || f[0] != want {
		return nil, rd.errorf("expected " + want + " record")
	}
	return f, nil
}

func (rd *reader) number(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, rd.errorf("bad number " + strconv.Quote(s))
	}
	return v, nil
}

func (rd *reader) wire(s string, table *device.WireTable) (device.WireID, error) {
	v, err := rd.number(s)
	if err != nil {
		return device.NoWire, err
	}
	if v < 0 || v >= table.Len() {
		return device.NoWire, rd.errorf("wire id " + s + " out of range")
	}
	return device.WireID(v), nil
}

func (rd *reader) array(s string) ([]device.WireConnection, error) {
	v, err := rd.number(s)
	if err != nil {
		return nil, err
	}
	if v < 0 || v >= len(rd.arrays) {
		return nil, rd.errorf("array reference " + s + " out of range")
	}
	return rd.arrays[v], nil
}

func (rd *reader) read() error {
	head, err := rd.fields(magic, 2)
	if err != nil {
		return err
	}
	if head[1] != strconv.Itoa(version) {
		return rd.errorf("unsupported version " + head[1])
	}
	f, err := rd.fields("device", 5)
	if err != nil {
		return err
	}
	rows, err := rd.number(f[2])
	if err != nil {
		return err
	}
	cols, err := rd.number(f[3])
	if err != nil {
		return err
	}
	if rows <= 0 || cols <= 0 {
		return rd.errorf("bad grid size")
	}
	rd.dev = device.New(f[1], int32(rows), int32(cols))
	rd.indexed = f[4] == "1"

	if err := rd.readWires(rd.dev.Wires); err != nil {
		return err
	}
	if err := rd.readArrays(); err != nil {
		return err
	}
	for {
		line, err := rd.next()
		if err != nil {
			return err
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			return rd.errorf("empty record")
		}
		switch f[0] {
		case "template":
			err = rd.readTemplate(f)
		case "tile":
			err = rd.readTile(f)
		case "eof":
			if rd.indexed {
				rd.dev.MarkIndexed()
			}
			return nil
		default:
			err = rd.errorf("unknown record " + strconv.Quote(f[0]))
		}
		if err != nil {
			return err
		}
	}
}

func (rd *reader) readWires(table *device.WireTable) error {
	f, err := rd.fields("wires", 2)
	if err != nil {
		return err
	}
	n, err := rd.number(f[1])
	if err != nil {
		return err
	}
	return rd.readNames(table, n)
}

func (rd *reader) readNames(table *device.WireTable, n int) error {
	for i := 0; i < n; i++ {
		name, err := rd.next()
		if err != nil {
			return err
		}
		if id := table.Intern(name); int(id) != i {
			return rd.errorf("duplicate wire name " + strconv.Quote(name))
		}
	}
	return nil
}

func (rd *reader) readArrays() error {
	f, err := rd.fields("arrays", 2)
	if err != nil {
		return err
	}
	n, err := rd.number(f[1])
	if err != nil {
		return err
	}
	rd.arrays = make([][]device.WireConnection, n)
	for i := range rd.arrays {
		line, err := rd.next()
		if err != nil {
			return err
		}
		entries := strings.Fields(line)
		conns := make([]device.WireConnection, len(entries))
		for j, e := range entries {
			parts := strings.Split(e, ",")
			if len(parts) != 4 {
				return rd.errorf("bad connection " + strconv.Quote(e))
			}
			var v [4]int
			for k, p := range parts {
				if v[k], err = rd.number(p); err != nil {
					return err
				}
			}
			conns[j] = device.WireConnection{
				Wire:         device.WireID(v[0]),
				RowOffset:    int32(v[1]),
				ColumnOffset: int32(v[2]),
				PIP:          v[3] == 1,
			}
		}
		rd.arrays[i] = rd.dev.Store.Intern(conns)
	}
	return nil
}

func (rd *reader) readTemplate(head []string) error {
	if len(head) != 3 {
		return rd.errorf("bad template record")
	}
	tmpl, _ := rd.dev.Template(head[1], true)
	n, err := rd.number(head[2])
	if err != nil {
		return err
	}
	if err := rd.readNames(tmpl.Wires, n); err != nil {
		return err
	}
	reverse := make(map[device.WireID][]device.WireConnection)
	for {
		line, err := rd.next()
		if err != nil {
			return err
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			return rd.errorf("empty record")
		}
		switch {
		case f[0] == "end" && len(f) == 1:
			if len(reverse) > 0 {
				tmpl.SetReverse(reverse)
			}
			return nil
		case f[0] == "pin" && len(f) == 4:
			dir, ok := device.ParseDirection(f[2])
			if !ok {
				return rd.errorf("bad direction " + f[2])
			}
			w, err := rd.wire(f[3], tmpl.Wires)
			if err != nil {
				return err
			}
			tmpl.AddPin(f[1], dir, w)
		case f[0] == "belpin" && len(f) == 5:
			dir, ok := device.ParseDirection(f[3])
			if !ok {
				return rd.errorf("bad direction " + f[3])
			}
			w, err := rd.wire(f[4], tmpl.Wires)
			if err != nil {
				return err
			}
			tmpl.AddBELPin(f[1], f[2], dir, w)
		case f[0] == "sitepip" && len(f) == 5:
			from, err := rd.wire(f[1], tmpl.Wires)
			if err != nil {
				return err
			}
			to, err := rd.wire(f[2], tmpl.Wires)
			if err != nil {
				return err
			}
			tmpl.AddSitePIP(from, to, device.SitePIP{Element: f[3], Option: f[4]})
		case f[0] == "rt" && len(f) == 3:
			in, err := rd.wire(f[1], tmpl.Wires)
			if err != nil {
				return err
			}
			out, err := rd.wire(f[2], tmpl.Wires)
			if err != nil {
				return err
			}
			tmpl.AddRoutethrough(in, out)
		case (f[0] == "adj" || f[0] == "rev") && len(f) == 3:
			w, err := rd.wire(f[1], tmpl.Wires)
			if err != nil {
				return err
			}
			conns, err := rd.array(f[2])
			if err != nil {
				return err
			}
			if f[0] == "adj" {
				tmpl.SetConnections(w, conns)
			} else {
				reverse[w] = conns
			}
		default:
			return rd.errorf("unexpected template record " + strconv.Quote(f[0]))
		}
	}
}

func (rd *reader) readTile(head []string) error {
	if len(head) != 5 {
		return rd.errorf("bad tile record")
	}
	row, err := rd.number(head[1])
	if err != nil {
		return err
	}
	col, err := rd.number(head[2])
	if err != nil {
		return err
	}
	tile := device.NewTile(int32(row), int32(col), head[3], head[4])
	if err := rd.dev.AddTile(tile); err != nil {
		return device.Locate(err, device.Location{File: rd.filename, Line: rd.line})
	}
	wires := rd.dev.Wires
	reverse := make(map[device.WireID][]device.WireConnection)
	for {
		line, err := rd.next()
		if err != nil {
			return err
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			return rd.errorf("empty record")
		}
		switch {
		case f[0] == "end" && len(f) == 1:
			if len(reverse) > 0 {
				tile.SetReverse(reverse)
			}
			return nil
		case f[0] == "declare":
			for _, s := range f[1:] {
				w, err := rd.wire(s, wires)
				if err != nil {
					return err
				}
				tile.Declare(w)
			}
		case f[0] == "site" && len(f) == 5:
			tmpl, ok := rd.dev.Template(f[2], false)
			if !ok {
				return rd.errorf("unknown site type " + f[2])
			}
			site := device.NewSite(f[1], tmpl, tile.Row, tile.Column)
			if f[3] != "-" {
				site.Bonded = f[3]
			}
			if f[4] != "-" {
				site.Alternatives = strings.Split(f[4], ",")
			}
			if err := rd.dev.AddSite(site); err != nil {
				return device.Locate(err, device.Location{File: rd.filename, Line: rd.line})
			}
			tile.AddSite(site)
		case f[0] == "pinwire" && len(f) == 4:
			site, ok := tile.Site(f[1])
			if !ok {
				return rd.errorf("pin of unknown site " + f[1])
			}
			w, err := rd.wire(f[3], wires)
			if err != nil {
				return err
			}
			site.SetPinWire(f[2], w)
			if pin, ok := site.Type.Pin(f[2]); ok {
				tile.BindSitePin(w, device.SitePinRef{Site: site, Pin: pin})
			}
		case (f[0] == "adj" || f[0] == "rev") && len(f) == 3:
			w, err := rd.wire(f[1], wires)
			if err != nil {
				return err
			}
			conns, err := rd.array(f[2])
			if err != nil {
				return err
			}
			if f[0] == "adj" {
				tile.SetConnections(w, conns)
			} else {
				reverse[w] = conns
			}
		default:
			return rd.errorf("unexpected tile record " + strconv.Quote(f[0]))
		}
	}
}

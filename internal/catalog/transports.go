package catalog

import (
	"time"

	"github.com/udisondev/worldcore/internal/transport"
)

type transportsDoc struct {
	Transports []pathDef `yaml:"transports"`
}

type pathDef struct {
	Entry uint32    `yaml:"entry"`
	Speed float64   `yaml:"speed"`
	Accel float64   `yaml:"accel"`
	Nodes []nodeDef `yaml:"nodes"`
}

type nodeDef struct {
	Map       uint32        `yaml:"map"`
	X         float64       `yaml:"x"`
	Y         float64       `yaml:"y"`
	Z         float64       `yaml:"z"`
	Teleport  bool          `yaml:"teleport"`
	Stop      bool          `yaml:"stop"`
	Delay     time.Duration `yaml:"delay"`
	Arrival   uint32        `yaml:"arrival_event"`
	Departure uint32        `yaml:"departure_event"`
}

func (c *Catalog) parseTransports(data []byte) error {
	var doc transportsDoc
	if err := decode(data, &doc); err != nil {
		return err
	}
	for _, d := range doc.Transports {
		def := transport.PathDef{
			Entry: d.Entry,
			Speed: d.Speed,
			Accel: d.Accel,
			Nodes: make([]transport.Node, 0, len(d.Nodes)),
		}
		for _, n := range d.Nodes {
			var flags transport.NodeFlags
			if n.Teleport {
				flags |= transport.NodeTeleport
			}
			if n.Stop || n.Delay > 0 {
				flags |= transport.NodeStop
			}
			def.Nodes = append(def.Nodes, transport.Node{
				MapID:            n.Map,
				X:                n.X,
				Y:                n.Y,
				Z:                n.Z,
				Flags:            flags,
				Delay:            n.Delay,
				ArrivalEventID:   n.Arrival,
				DepartureEventID: n.Departure,
			})
		}
		c.paths = append(c.paths, def)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/frobware/go-pppring"
)

// mediaType is the optional leading token of a ha.cf style media line.
const mediaType = "ppp-udp"

// ParseMedia parses "<device> <ip> [<device> <ip>]..." into link specs
// using port for every link. Any bad pair rejects the whole line.
func ParseMedia(line string, port int) ([]pppring.LinkSpec, error) {
	fields := strings.Fields(line)
	if len(fields) > 0 && fields[0] == mediaType {
		fields = fields[1:]
	}

	var specs []pppring.LinkSpec
	for i := 0; i < len(fields); i += 2 {
		tty := fields[i]
		if i+1 >= len(fields) {
			return nil, fmt.Errorf("ppp-udp tty [%s]: missing IP address", tty)
		}
		ip := fields[i+1]
		if err := ValidateSerialDevice(tty); err != nil {
			return nil, err
		}
		if err := ValidateLocalAddr(ip); err != nil {
			return nil, err
		}
		specs = append(specs, pppring.LinkSpec{Device: tty, LocalAddr: ip, Port: port})
	}
	return specs, nil
}

// Package radio persists the radio-station favorites list. Network radio
// streaming itself is out of scope; only the on-disk favorites file format,
// kept byte-for-byte compatible with the station favorites list, lives here.
package radio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const fieldSep = ":::"

// Station is one saved radio favorite.
type Station struct {
	Name        string
	URLResolved string
	Country     string
	Codec       string
	Bitrate     int
	Votes       int
}

// sanitizeField replaces the literal field separator so records stay
// parseable; the separator cannot appear inside a field value.
func sanitizeField(s string) string {
	return strings.ReplaceAll(s, fieldSep, "_")
}

// Load reads the `:::`-delimited favorites file.
func Load(path string) ([]Station, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var stations []Station
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, fieldSep)
		if len(fields) != 6 {
			return nil, fmt.Errorf("radio: malformed record %q", line)
		}
		bitrate, _ := strconv.Atoi(fields[4])
		votes, _ := strconv.Atoi(fields[5])
		stations = append(stations, Station{
			Name:        fields[0],
			URLResolved: fields[1],
			Country:     fields[2],
			Codec:       fields[3],
			Bitrate:     bitrate,
			Votes:       votes,
		})
	}
	return stations, scanner.Err()
}

// Save writes stations to path in the `:::`-delimited format, sanitising
// any field that happens to contain the separator.
func Save(path string, stations []Station) error {
	var b strings.Builder
	for _, s := range stations {
		fmt.Fprintf(&b, "%s%s%s%s%s%s%s%s%d%s%d\n",
			sanitizeField(s.Name), fieldSep,
			sanitizeField(s.URLResolved), fieldSep,
			sanitizeField(s.Country), fieldSep,
			sanitizeField(s.Codec), fieldSep,
			s.Bitrate, fieldSep,
			s.Votes,
		)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

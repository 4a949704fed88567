package admin

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// instanceForm carries the ip/port pair that identifies an instance.
type instanceForm struct {
	IP   string
	Port string
}

func parseInstanceForm(r *http.Request) instanceForm {
	return instanceForm{
		IP:   strings.TrimSpace(r.PostFormValue("ip")),
		Port: strings.TrimSpace(r.PostFormValue("port")),
	}
}

func (f instanceForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.IP, validation.Required, is.Host),
		validation.Field(&f.Port, validation.Required, is.Port),
	)
}

// URL returns the instance identity, http://ip:port.
func (f instanceForm) URL() string {
	return "http://" + net.JoinHostPort(f.IP, f.Port)
}

// parseIndex reads the ordinal "index" field. ok is false when the field is
// absent; err is set when it is present but not a number.
func parseIndex(r *http.Request) (index int, ok bool, err error) {
	raw := strings.TrimSpace(r.PostFormValue("index"))
	if raw == "" {
		return 0, false, nil
	}

	index, err = strconv.Atoi(raw)
	if err != nil {
		return 0, true, err
	}
	return index, true, nil
}

package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/muurk/shellyscan/internal/scan"
)

// glmHeader declares the shelly module, its hub and device classes, and opens
// the hub object that holds one device object per result.
const glmHeader = `module shelly;
class hub
{
    on_init "python:shelly.hub_init";
    on_sync "python:shelly.hub_sync";
}
class device
{
    char32 ipaddr;
    enumeration {OFFLINE=0, ONLINE=1} status;
    enumeration {OFF=0, ON=1} switch;
    bool output;
    double power[W];
    double voltage[V];
    double current[A];
    double energy[Wh];
    timestamp last_update;
    on_init "python:shelly.device_init";
    on_precommit "python:shelly.device_read";
    on_commit "python:shelly.device_write";
}
object hub {
`

// WriteGLM writes a GridLAB-D model with a hub containing every device.
// hubName names the hub object when not empty.
func WriteGLM(w io.Writer, devices []scan.Device, hubName string) error {
	var b strings.Builder
	b.WriteString(glmHeader)
	if hubName != "" {
		fmt.Fprintf(&b, "    name \"%s\";\n", glmEscape(hubName))
	}
	for _, d := range devices {
		fmt.Fprintf(&b, "    object device\n    {\n        name \"%s\";\n        ipaddr \"%s\";\n    };\n",
			glmEscape(d.Name), d.Addr)
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// glmEscape keeps a name inside its quotes
func glmEscape(s string) string {
	return strings.NewReplacer(`"`, `'`, "\n", " ", ";", "_").Replace(s)
}

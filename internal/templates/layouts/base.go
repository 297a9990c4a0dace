package layouts

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const baseStyle = `body{margin:0;min-height:100vh;display:flex;align-items:center;justify-content:center;background:#0f0f14;color:#e8e8f0;font-family:system-ui,sans-serif}
main{max-width:28rem;padding:2rem;text-align:center}
h1{font-size:1.5rem;margin:0 0 .5rem}
p{color:#a0a0b0}
.spinner{width:32px;height:32px;margin:auto;border:3px solid #2a2a35;border-top-color:#8b7cf6;border-radius:50%;animation:spin .8s linear infinite}
@keyframes spin{to{transform:rotate(360deg)}}`

// Options tweak the document shell.
type Options struct {
	// RefreshSeconds adds a meta refresh when positive.
	RefreshSeconds int
}

// Base wraps body in the document shell shared by every page.
func Base(title string, opts Options, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		refresh := ""
		if opts.RefreshSeconds > 0 {
			refresh = fmt.Sprintf("\n<meta http-equiv=\"refresh\" content=\"%d\">", opts.RefreshSeconds)
		}
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">%s
<title>%s</title>
<style>
%s
</style>
</head>
<body><main>
`, refresh, templ.EscapeString(title), baseStyle); err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		_, err := io.WriteString(w, "</main></body>\n</html>\n")
		return err
	})
}

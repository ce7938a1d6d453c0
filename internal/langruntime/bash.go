package langruntime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/expansion"
)

// Bash is the interpolation-based runtime: every "${...}" reference is
// substituted directly into the script text before it is written to disk.
type Bash struct{}

// NewBash returns the bash runtime.
func NewBash() *Bash { return &Bash{} }

func (b *Bash) Name() string { return "bash" }

func (b *Bash) Prepare(version *corpus.Version, ctx *expansion.Context, actionKey string, outputJSONPath, workingDir string) (*Prepared, error) {
	rendered, err := expansion.Expand(version.Script, ctx, actionKey)
	if err != nil {
		return nil, err
	}

	var exports strings.Builder
	names := make([]string, 0, len(ctx.Env))
	for name := range ctx.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		escaped := strings.ReplaceAll(strings.ReplaceAll(ctx.Env[name], `\`, `\\`), `"`, `\"`)
		fmt.Fprintf(&exports, "export %s=\"%s\"\n", name, escaped)
	}

	header := fmt.Sprintf("#!/usr/bin/env bash\nexport MDL_OUTPUT_JSON=\"%s\"\nsource \"%s/.mdl/runtime.sh\"\n\n", outputJSONPath, workingDir)

	return &Prepared{
		Content:   header + exports.String() + "\n" + rendered,
		Extension: ".sh",
	}, nil
}

func (b *Bash) Command(scriptPath string) []string {
	return []string{"bash", scriptPath}
}

// runtimeSH is sourced by every generated bash script: it provides the ret
// and retain pseudo-commands actions call to report typed outputs and
// (for retainer actions) signal soft-dependency retention.
const runtimeSH = `#!/usr/bin/env bash
# mdl runtime, sourced by every generated bash script.

declare -a MDL_OUTPUT_LINES=()

ret() {
	local declaration="$1"
	local name="${declaration%%:*}"
	local rest="${declaration#*:}"
	local type="${rest%%=*}"
	local value="${rest#*=}"
	MDL_OUTPUT_LINES+=("$(printf '%s' "$name:$type:$value")")
}

retain() {
	if [ -n "${MDL_RETAIN_SIGNAL_FILE:-}" ]; then
		: > "$MDL_RETAIN_SIGNAL_FILE"
	fi
}

mdl_write_outputs() {
	{
		echo "{"
		local first=true
		for line in "${MDL_OUTPUT_LINES[@]}"; do
			local name="${line%%:*}"
			local rest="${line#*:}"
			local type="${rest%%:*}"
			local value="${rest#*:}"
			if [ "$first" = true ]; then first=false; else echo ","; fi
			local json_value
			case "$type" in
				int)
					json_value=$(printf '%s' "$value" | tr -d '[:space:]')
					;;
				bool)
					json_value=$(printf '%s' "$value" | tr -d '[:space:]')
					case "$json_value" in
						true|false) ;;
						*) json_value="false" ;;
					esac
					;;
				*)
					json_value=$(printf '%s' "$value" | python3 -c 'import sys, json; print(json.dumps(sys.stdin.read().strip()))' 2>/dev/null || printf '"%s"' "$value")
					;;
			esac
			printf '  "%s": {"type": "%s", "value": %s}' "$name" "$type" "$json_value"
		done
		echo ""
		echo "}"
	} > "$MDL_OUTPUT_JSON"
}
trap mdl_write_outputs EXIT

set -euo pipefail
`

func (b *Bash) RuntimeFiles() map[string]string {
	return map[string]string{"runtime.sh": runtimeSH}
}

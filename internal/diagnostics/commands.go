package diagnostics

// CommandSpec pairs a report label with the shell command producing it.
type CommandSpec struct {
	Label       string `json:"label" yaml:"label"`
	CommandLine string `json:"command" yaml:"command"`
}

// Labels of the fixed battery.
const (
	LabelUptime = "uptime"
	LabelMemory = "memory"
	LabelDisk   = "disk"
	LabelCPU    = "cpu"
)

var commands = [...]CommandSpec{
	{Label: LabelUptime, CommandLine: "uptime"},
	{Label: LabelMemory, CommandLine: "free -m"},
	{Label: LabelDisk, CommandLine: "df -h --output=source,fstype,size,used,avail,pcent,target -x tmpfs -x devtmpfs"},
	{Label: LabelCPU, CommandLine: "top -bn1 | head -n 5"},
}

// Commands returns the diagnostic battery in execution order.
// The returned slice is a copy.
func Commands() []CommandSpec {
	out := make([]CommandSpec, len(commands))
	copy(out, commands[:])
	return out
}

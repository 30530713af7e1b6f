package version

import (
	"fmt"
	"runtime/debug"
)

// Set via -ldflags at release build time.
var (
	Version = "dev"
	Channel = "dev"
)

type Info struct {
	Version string `json:"version"`
	Channel string `json:"channel"`
}

func GetInfo() *Info {
	v := Version
	if v == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return &Info{Version: v, Channel: Channel}
}

func (i *Info) String() string {
	if i.Channel == "" || i.Channel == "stable" {
		return i.Version
	}
	return fmt.Sprintf("%s-%s", i.Version, i.Channel)
}

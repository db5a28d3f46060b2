// Command logtailcore runs the file-tailing agent core: discovery, watch
// registry, per-file readers, checkpointing and dispatch, with no plugin
// pipeline attached.
package main

import "github.com/open-logtail/logtailcore/cmd"

func main() {
	cmd.Execute()
}

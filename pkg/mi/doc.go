// Package mi implements the client side of the GDB machine interface.
//
// GDB started with --interpreter=mi4 reads one command per line and answers
// with a sequence of records, terminated by a single result record and a
// "(gdb)" prompt:
//
//	7-target-attach 1
//	=thread-group-started,id="i1",pid="1"
//	~"Attaching to Remote target\n"
//	7^done
//	(gdb)
//
// Record types are identified by their leading character:
//
//	^  result         (done, running, connected, error, exit)
//	*  exec async     (running, stopped)
//	+  status async   (download progress)
//	=  notify async   (thread-group-added, breakpoint-modified, ...)
//	~  console stream
//	@  target stream  (monitor command output from the probe)
//	&  log stream     (echo of CLI commands, warnings)
//
// Transport prefixes every command with a numeric token and requires the
// terminating result record to echo it, so a stale or reordered answer is
// reported as ErrProtocol instead of being attributed to the wrong command.
//
// # Usage
//
//	proc, err := mi.Start(ctx, "arm-none-eabi-gdb", nil, mi.WithLogger(plog))
//	if err != nil {
//		return err
//	}
//	defer proc.Close()
//
//	records, err := proc.Send(ctx, "-gdb-version")
//	for rec := range mi.Filter(records, mi.RecordConsole) {
//		fmt.Print(rec.Payload)
//	}
package mi

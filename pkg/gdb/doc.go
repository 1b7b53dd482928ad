// Package gdb implements the debugger operations needed to provision a
// target through GDB's machine interface.
//
// A Client wraps an MI exchanger (usually an *mi.Process) and turns each
// operation into exactly one command exchange:
//
//	proc, _ := mi.Start(ctx, "arm-none-eabi-gdb", nil)
//	defer proc.Close()
//
//	client, err := gdb.New(ctx, proc)
//	if err != nil {
//		return err
//	}
//	ok, err := client.Attach(ctx, 1)
//
// Operation results follow one contract throughout: a bool (or an ok flag
// next to a value) reports whether the debugger accepted the operation,
// and a non-nil error means the transport failed or the debugger broke the
// exchange contract. Errors wrapping mi.ErrProtocol mean client and
// debugger are out of step; callers must stop using the session.
package gdb

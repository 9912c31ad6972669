// Package serial provides a Linux serial port with overlapped-style I/O:
// reads and writes are submitted, then their completion is polled, and a
// single multiplexed Wait is the only call that blocks.
//
// It is the device side of serialterm, an interactive terminal for serial
// consoles, but it has no terminal dependencies of its own.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, 8 data bits, no parity, 1 stop bit
//   - At most one outstanding read and one outstanding write, enforced by the Port
//   - Write timeout reported as a failed completion
//   - poll(2) based Wait that can also watch one extra descriptor (the terminal)
//   - Self-pipe wakeup so another goroutine can interrupt Wait
//   - PTY-based tests for reliability
//
// This package does **not** support Windows.
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device:       "/dev/ttyUSB0",
//	    BaudRate:     115200,
//	    WriteTimeout: time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	buf := make([]byte, 4096)
//	if err := port.SubmitRead(buf); err != nil {
//	    log.Fatal(err)
//	}
//	for {
//	    if err := port.Wait(time.Second, -1); err != nil {
//	        log.Fatal(err)
//	    }
//	    res := port.PollRead()
//	    switch res.State {
//	    case serial.Completed:
//	        os.Stdout.Write(buf[:res.N])
//	        port.SubmitRead(buf)
//	    case serial.Failed:
//	        log.Fatal(res.Err)
//	    }
//	}
package serial

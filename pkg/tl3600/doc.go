// Package tl3600 implements the serial exchange protocol of the TL3600 and
// TL3500BP card-payment terminals (vendor protocol document V10.1). It covers
// packet framing with BCC validation, the ACK/NACK handshake over the serial
// link, and the terminal session state machine that turns card-presentation
// events into approval or cancellation outcomes.
//
// Key Features:
//   - Byte-exact packet codec (STX/ETX framing, XOR BCC, fixed-width fields)
//   - Serial transport with ACK/NACK handshake, retries and timeouts
//   - Separation of solicited responses from unsolicited '@' event frames
//   - Terminal controller: device check, payment standby, automatic approval
//     on card presentation, VAN no-card cancellation, last-transaction inquiry
//   - Closed reject-code table mapped to operator-readable messages
//
// Example Usage:
//
//	tr := tl3600.NewSerialTransport(tl3600.SerialConfig{
//	    PortName: "/dev/ttyUSB0",
//	    Logger:   func(msg string) { fmt.Println(msg) },
//	})
//	ctrl := tl3600.NewController(tl3600.Config{TerminalID: "TL36000001"}, tr)
//	if err := ctrl.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Disconnect()
//
//	ctrl.EnterPaymentMode(tl3600.DefaultApprovalRequest(5000))
//	for n := range ctrl.Events() {
//	    if n.Kind == tl3600.NotePaymentApproved {
//	        fmt.Println("approved:", n.Result.ApprovalNumber)
//	        break
//	    }
//	}
//
// The transport never interprets protocol semantics beyond frame boundaries
// and the handshake; all job-code logic lives in the controller. Custom
// Transport implementations can be supplied for testing.
package tl3600

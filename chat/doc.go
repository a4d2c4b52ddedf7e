// Package chat is the Twitch chat transport used to observe channel presence.
//
// Dial opens a plain TCP connection to the chat relay, authenticates with PASS/NICK and
// joins a single channel. A receive loop then classifies every inbound line:
//   - PING keepalives are answered with the matching PONG;
//   - a login failure notice stops the loop with errs.ErrAuthentication;
//   - channel messages yield their sender, which is forwarded to the InteractionHandler
//     (the message text is discarded);
//   - NOTICE and RECONNECT lines are logged; everything else is dropped.
//
// Outbound writes are gated by an alive flag that Stop clears. The goodbye PART line is the
// one write that bypasses the gate, and it is sent at most once per Transport.
//
// Reads use a bounded deadline (Options.ReadTimeout), so after Stop the loop notices within
// one timeout; Close closes the socket and returns as soon as the loop has exited.
package chat

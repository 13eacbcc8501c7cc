package modem_test

import (
	"io"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/celldial/modem"
)

// MockSequenceBuilder scripts a MockTransport: every expected command line
// queues its response for the pump, which reads from the inbound channel
// until the transport is closed.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	inbound   chan []byte
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	b := &MockSequenceBuilder{
		transport: transport,
		inbound:   make(chan []byte, 16),
		calls:     []any{},
	}
	transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		data, ok := <-b.inbound
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	}).AnyTimes()
	return b
}

func (b *MockSequenceBuilder) expect(cmd, response string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd+"\r")).DoAndReturn(func(p []byte) (int, error) {
			if response != "" {
				b.inbound <- []byte(response)
			}
			return len(p), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.expect("AT", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) IMEI(imei string) *MockSequenceBuilder {
	return b.expect("AT+GSN", "\r\n"+imei+"\r\n\r\nOK\r\n")
}

// Close expects the transport to be closed and returns err from it.
func (b *MockSequenceBuilder) Close(err error) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Close().DoAndReturn(func() error {
			close(b.inbound)
			return err
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// Init covers New: the command mode probe and the readiness check.
func (b *MockSequenceBuilder) Init() *MockSequenceBuilder {
	return b.AT().AT()
}

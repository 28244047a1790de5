package network

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/annel0/sandbox-game/internal/protocol"
)

// UDPEndpoint UDP сокет сервера или клиента. Чтение ведёт одна горутина,
// Wake может вызываться из любой.
type UDPEndpoint struct {
	conn   *net.UDPConn
	buffer []byte
}

// Listen открывает сокет на адресе вида "host:port" (порт 0 выбирает свободный)
func Listen(address string) (*UDPEndpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}
	return &UDPEndpoint{
		conn:   conn,
		// лишний байт отличает слишком длинную датаграмму от обрезанной
		buffer: make([]byte, protocol.MaxPacketSize+1),
	}, nil
}

// ResolveAddr разбирает адрес сервера в netip.AddrPort
func ResolveAddr(address string) (netip.AddrPort, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", address, err)
	}
	return Normalize(addr.AddrPort()), nil
}

// Normalize убирает IPv4-in-IPv6 отображение, чтобы один клиент
// всегда имел один ключ
func Normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}

// Read ждёт датаграмму не дольше timeout. ok == false при таймауте.
// Возвращаемый срез действителен до следующего вызова Read. Датаграмма
// длиннее MaxPacketSize приходит длиной MaxPacketSize+1 и отвергается DecodePacket.
func (e *UDPEndpoint) Read(timeout time.Duration) ([]byte, netip.AddrPort, bool, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, netip.AddrPort{}, false, err
	}
	n, addr, err := e.conn.ReadFromUDPAddrPort(e.buffer)
	if err != nil {
		if isTimeout(err) {
			return nil, netip.AddrPort{}, false, nil
		}
		return nil, netip.AddrPort{}, false, err
	}
	return e.buffer[:n], Normalize(addr), true, nil
}

// WriteTo реализует Sender
func (e *UDPEndpoint) WriteTo(packet []byte, addr netip.AddrPort) error {
	_, err := e.conn.WriteToUDPAddrPort(packet, addr)
	return err
}

// Wake прерывает текущее ожидание в Read
func (e *UDPEndpoint) Wake() {
	_ = e.conn.SetReadDeadline(time.Now())
}

// LocalAddr фактический адрес сокета
func (e *UDPEndpoint) LocalAddr() netip.AddrPort {
	return Normalize(e.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

func (e *UDPEndpoint) Close() error {
	return e.conn.Close()
}

// IsClosed true для ошибок чтения из закрытого сокета
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/world"
)

// интервал повторной отправки ненадёжного CLIENT_INFO_REQUEST
const infoRetryInterval = 250 * time.Millisecond

// RequestInfo запрашивает SERVER_INFO без подключения. Запрос ненадёжный
// и повторяется, пока не придёт ответ или не истечёт ctx.
func RequestInfo(ctx context.Context, address string) (*protocol.ServerInfo, error) {
	server, err := network.ResolveAddr(address)
	if err != nil {
		return nil, err
	}
	endpoint, err := network.Listen(listenAddrFor(server))
	if err != nil {
		return nil, err
	}
	defer endpoint.Close()

	request, err := network.EncodePacket(protocol.ClientInfoRequestTag, false, 0, nil)
	if err != nil {
		return nil, err
	}
	inbound := protocol.ClientBound()
	types := world.NewTypeRegistry()

	for {
		if err := endpoint.WriteTo(request, server); err != nil {
			return nil, fmt.Errorf("запрос информации: %w", err)
		}
		deadline := time.Now().Add(infoRetryInterval)
		for time.Now().Before(deadline) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			data, from, ok, err := endpoint.Read(10 * time.Millisecond)
			if err != nil {
				if network.IsClosed(err) {
					return nil, err
				}
				continue
			}
			if !ok || from != server {
				continue
			}
			pkt, err := network.DecodePacket(data, inbound)
			if err != nil || pkt.Tag != protocol.ServerInfoTag {
				continue
			}
			msg, err := inbound.Decode(pkt.Tag, serial.NewDecoder(types, pkt.Payload))
			if err != nil {
				return nil, err
			}
			return msg.(*protocol.ServerInfo), nil
		}
	}
}

package heartbeat

import "github.com/fako1024/gatt"

var defaultBTClientOptions = []gatt.Option{
	gatt.MacDeviceRole(gatt.CentralManager),
}

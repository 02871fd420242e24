// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package network 提供监听地址与客户端地址的辅助函数。
package network

import (
	"fmt"
	"net"

	"github.com/emitter-io/address"
)

// DefaultPort 未指定端口时的监听端口
const DefaultPort = 8090

// ListenAddr 解析监听地址，支持 ":8090"、"private:8090"、"public"、"0.0.0.0" 等写法
func ListenAddr(s string) (*net.TCPAddr, error) {
	addr, err := address.Parse(s, DefaultPort)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", s, err)
	}
	return addr, nil
}

// HostIP 去掉 host:port 中的端口
func HostIP(hostport string) net.IP {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	return net.ParseIP(host)
}

// GetLocalIP 获取本地非回环的 IPv4 地址
func GetLocalIP() []string {
	addrs, _ := net.InterfaceAddrs()
	ips := []string{}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP.String())
			}
		}
	}
	return ips
}

// IsLocalhostIP 判断是否为本机IP
func IsLocalhostIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, localhost := range loopbackBlocks {
		if localhost.Contains(ip) {
			return true
		}
	}
	privs, err := address.GetPrivate()
	if err != nil {
		return false
	}

	for _, priv := range privs {
		if priv.IP.Equal(ip) {
			return true
		}
	}
	return false
}

var loopbackBlocks = []*net.IPNet{
	parseCIDR("0.0.0.0/8"),   // RFC 1918 IPv4 loopback address
	parseCIDR("127.0.0.0/8"), // RFC 1122 IPv4 loopback address
	parseCIDR("::1/128"),     // RFC 1884 IPv6 loopback address
}

func parseCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("Bad CIDR %s: %s", s, err))
	}
	return block
}

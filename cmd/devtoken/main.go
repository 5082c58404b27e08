// devtoken はローカル確認用のアクセストークンを発行する。
//
//	go run ./cmd/devtoken -user 1
//	go run ./cmd/devtoken -user 9 -role ADMIN
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"ordercore/internal/auth"
	"ordercore/internal/config"
)

func main() {
	userID := flag.Int64("user", 1, "user id (sub)")
	role := flag.String("role", string(auth.RoleUser), "USER or ADMIN")
	flag.Parse()

	cfg, err := config.Load("configs")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	m := auth.NewManager(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.AccessTTL)
	token, exp, err := m.Issue(*userID, auth.Role(strings.ToUpper(*role)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", exp.Format("2006-01-02 15:04:05 MST"))
}

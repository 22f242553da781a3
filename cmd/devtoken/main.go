// Command devtoken mints HS256 ID tokens accepted by the API when it runs
// without a Firebase project.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"duka.app/internal/auth"
)

func main() {
	log.SetFlags(0)
	var (
		secret  = flag.String("secret", os.Getenv("DUKA_AUTH_SECRET"), "HS256 signing secret")
		issuer  = flag.String("issuer", os.Getenv("DUKA_AUTH_ISSUER"), "token issuer (default: duka)")
		subject = flag.String("sub", "", "subject (external uid) to embed")
		email   = flag.String("email", "", "optional email claim")
		ttl     = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	if *subject == "" {
		log.Fatal("usage: devtoken -sub <uid> [-email addr] [-ttl 1h]")
	}
	var opts []auth.HMACOption
	if *issuer != "" {
		opts = append(opts, auth.WithHMACIssuer(*issuer))
	}
	v, err := auth.NewHMACVerifier(*secret, opts...)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}
	token, err := v.GenerateToken(*subject, *email, *ttl)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	fmt.Println(token)
}

// walletctl generates wallet keys and signs attestation messages for manual
// testing against the chat bot.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/byteball/attestation-kit/internal/attestation"
	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/wallet"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "walletctl",
		Short:        "Wallet helper for attestation testing",
		SilenceUsage: true,
	}
	cmd.AddCommand(newKeygenCmd(), newAddressCmd(), newSignCmd())
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a private key and print it with its address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := wallet.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key:     %s\naddress: %s\n", wallet.KeyHex(key), wallet.AddressFromPubKey(&key.PublicKey))
			return nil
		},
	}
}

func newAddressCmd() *cobra.Command {
	var keyHex string
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the address controlled by a private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := wallet.LoadKey(keyHex)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), wallet.AddressFromPubKey(&key.PublicKey))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", os.Getenv("WALLET_KEY"), "hex private key (env WALLET_KEY)")
	return cmd
}

func newSignCmd() *cobra.Command {
	var (
		keyHex string
		fields string
	)
	cmd := &cobra.Command{
		Use:   "sign [message]",
		Short: "Sign a message and print it as a chat signed-message",
		Long: "Sign a message and print it as a chat signed-message.\n" +
			"Without a message, the challenge for the key's address and --fields is signed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := wallet.LoadKey(keyHex)
			if err != nil {
				return err
			}

			var message string
			switch {
			case len(args) == 1 && fields != "":
				return errors.New("pass either a message or --fields, not both")
			case len(args) == 1:
				message = args[0]
			default:
				var profile domain.Fields
				if fields != "" {
					if profile, err = domain.ParseFields(fields); err != nil {
						return err
					}
				}
				message = attestation.ChallengeMessage(wallet.AddressFromPubKey(&key.PublicKey), profile)
			}

			env, err := wallet.Sign(key, message)
			if err != nil {
				return err
			}
			text, err := env.Text()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", os.Getenv("WALLET_KEY"), "hex private key (env WALLET_KEY)")
	cmd.Flags().StringVar(&fields, "fields", "", "form-encoded order fields (k1=v1&k2=v2), as used in pairing links")
	return cmd
}

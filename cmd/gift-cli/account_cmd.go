package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"giftchain/crypto"
)

func (c *cli) loadKey() (*crypto.PrivateKey, error) {
	if _, err := os.Stat(c.keystore); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("keystore %s not found. run gift-cli generate-key first", c.keystore)
	}
	pass, err := c.pass()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(c.keystore, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore %s: %w", c.keystore, err)
	}
	return key, nil
}

func (c *cli) runGenerateKey(args []string) int {
	fs := newFlagSet("generate-key", c.stderr)
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	if _, err := os.Stat(c.keystore); err == nil && !*force {
		return printError(c.stderr, fmt.Sprintf("keystore %s already exists; pass --force to replace it", c.keystore))
	}
	pass, err := c.pass()
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(c.keystore, key, pass); err != nil {
		return printError(c.stderr, fmt.Sprintf("save keystore: %v", err))
	}
	fmt.Fprintf(c.stdout, "Generated new key and saved to %s\n", c.keystore)
	fmt.Fprintf(c.stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func (c *cli) runAddress(args []string) int {
	fs := newFlagSet("address", c.stderr)
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	key, err := c.loadKey()
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	fmt.Fprintln(c.stdout, key.PubKey().Address().String())
	return 0
}

// addressOrSelf returns raw, or the wallet address when raw is empty.
func (c *cli) addressOrSelf(raw string) (string, error) {
	if raw = strings.TrimSpace(raw); raw != "" {
		if _, err := crypto.DecodeAddress(raw); err != nil {
			return "", fmt.Errorf("invalid address %q: %v", raw, err)
		}
		return raw, nil
	}
	key, err := c.loadKey()
	if err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}

func (c *cli) runBalance(args []string) int {
	fs := newFlagSet("balance", c.stderr)
	address := fs.String("address", "", "address to query (defaults to the wallet)")
	asset := fs.String("asset", "", "asset symbol (defaults to the native asset)")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	addr, err := c.addressOrSelf(*address)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	return c.invoke("bank_getBalance", map[string]interface{}{"address": addr, "asset": *asset}, false)
}

func (c *cli) runFaucet(args []string) int {
	fs := newFlagSet("faucet", c.stderr)
	address := fs.String("address", "", "recipient address (defaults to the wallet)")
	asset := fs.String("asset", "", "asset symbol (defaults to the native asset)")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	addr, err := c.addressOrSelf(*address)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	return c.invoke("faucet_request", map[string]interface{}{"address": addr, "asset": *asset}, true)
}

// assetDecimals looks up the registered decimals of symbol.
func (c *cli) assetDecimals(symbol string) (uint8, error) {
	result, rpcErr, err := c.call("bank_listAssets", nil, false)
	if err != nil {
		return 0, err
	}
	if rpcErr != nil {
		return 0, fmt.Errorf("RPC error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	var assets []struct {
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
	}
	if err := json.Unmarshal(result, &assets); err != nil {
		return 0, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, a := range assets {
		if a.Symbol == symbol {
			return a.Decimals, nil
		}
	}
	return 0, fmt.Errorf("unknown asset %s", symbol)
}

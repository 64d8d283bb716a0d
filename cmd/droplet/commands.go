package main

import (
	"fmt"
	"io"
	"os"

	"droplet/cmd/internal/passphrase"
	"droplet/config"
	"droplet/core/types"
	"droplet/crypto"
)

func runGenerateKey(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("generate-key", stderr)
	light := fs.Bool("light", false, "Use light scrypt parameters (local development only)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := config.Load(common.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	path := common.keystore
	if path == "" {
		path = cfg.KeystorePath
	}
	if !*force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", path)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(common.passEnv).GetNew()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(path, key, pass, *light); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote keystore to %s\nIdentity: %s\n", path, key.PubKey().Address())
	return nil
}

func runDeploy(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("deploy", stderr)
	salt := fs.String("salt", "wallet", "Salt distinguishing wallets deployed by the same owner")
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	key, err := s.loadKey()
	if err != nil {
		return err
	}
	wallet := crypto.ContractAddress(key.Identity(), []byte(*salt))
	fmt.Fprintln(stdout, crypto.FormatContract(wallet))
	return nil
}

func runRegisterToken(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("register-token", stderr)
	salt := fs.String("salt", "token", "Salt distinguishing tokens registered by the same admin")
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	key, err := s.loadKey()
	if err != nil {
		return err
	}
	tokenID := crypto.ContractAddress(key.Identity(), []byte(*salt))
	if err := s.host.RegisterToken(tokenID, key.Identity()); err != nil {
		return err
	}
	fmt.Fprintln(stdout, crypto.FormatContract(tokenID))
	return nil
}

func runInit(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("init", stderr)
	walletStr := fs.String("wallet", "", "Wallet contract address")
	ownerStr := fs.String("owner", "", "Owner address (defaults to the keystore identity)")
	if err := parse(fs, args); err != nil {
		return err
	}
	wallet, err := parseIdentity("wallet", *walletStr)
	if err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	owner := *ownerStr
	if owner == "" {
		key, err := s.loadKey()
		if err != nil {
			return err
		}
		owner = crypto.FormatIdentity(key.Identity())
	} else if _, err := parseIdentity("owner", owner); err != nil {
		return err
	}
	return s.invoke(stdout, wallet, types.MethodInit, types.InitArgs{Owner: owner}, nil)
}

func runAmountCommand(method types.Method) func([]string, io.Writer, io.Writer) error {
	return func(args []string, stdout, stderr io.Writer) (err error) {
		fs, common := newFlagSet(string(method), stderr)
		walletStr := fs.String("wallet", "", "Wallet contract address")
		tokenStr := fs.String("token", "", "Token contract address")
		amountStr := fs.String("amount", "", "Amount in base units")
		if err := parse(fs, args); err != nil {
			return err
		}
		wallet, err := parseIdentity("wallet", *walletStr)
		if err != nil {
			return err
		}
		if _, err := parseIdentity("token", *tokenStr); err != nil {
			return err
		}
		amount, err := parseAmount("amount", *amountStr)
		if err != nil {
			return err
		}
		s, err := openSession(common)
		if err != nil {
			return err
		}
		defer s.closeInto(&err)
		key, err := s.loadKey()
		if err != nil {
			return err
		}
		return s.invoke(stdout, wallet, method, types.AmountArgs{Token: *tokenStr, Amount: amount}, key)
	}
}

func runTransfer(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("transfer", stderr)
	walletStr := fs.String("wallet", "", "Wallet contract address")
	tokenStr := fs.String("token", "", "Token contract address")
	toStr := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Gross amount in base units, charity fee included")
	if err := parse(fs, args); err != nil {
		return err
	}
	wallet, err := parseIdentity("wallet", *walletStr)
	if err != nil {
		return err
	}
	if _, err := parseIdentity("token", *tokenStr); err != nil {
		return err
	}
	if _, err := parseIdentity("to", *toStr); err != nil {
		return err
	}
	amount, err := parseAmount("amount", *amountStr)
	if err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	key, err := s.loadKey()
	if err != nil {
		return err
	}
	return s.invoke(stdout, wallet, types.MethodTransfer, types.TransferArgs{Token: *tokenStr, To: *toStr, Amount: amount}, key)
}

func runSetupCharity(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("setup-charity", stderr)
	walletStr := fs.String("wallet", "", "Wallet contract address")
	charityStr := fs.String("charity", "", "Charity address")
	feeStr := fs.String("fee-bps", "", "Fee in basis points, 0 to 10000")
	if err := parse(fs, args); err != nil {
		return err
	}
	wallet, err := parseIdentity("wallet", *walletStr)
	if err != nil {
		return err
	}
	if _, err := parseIdentity("charity", *charityStr); err != nil {
		return err
	}
	// Range checks happen in the contract so its errors reach the operator.
	fee, err := parseAmount("fee-bps", *feeStr)
	if err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	key, err := s.loadKey()
	if err != nil {
		return err
	}
	return s.invoke(stdout, wallet, types.MethodSetupCharity, types.CharityArgs{Charity: *charityStr, FeeBps: fee}, key)
}

func runMint(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("mint", stderr)
	tokenStr := fs.String("token", "", "Token contract address")
	toStr := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount in base units")
	if err := parse(fs, args); err != nil {
		return err
	}
	tokenID, err := parseIdentity("token", *tokenStr)
	if err != nil {
		return err
	}
	if _, err := parseIdentity("to", *toStr); err != nil {
		return err
	}
	amount, err := parseAmount("amount", *amountStr)
	if err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	key, err := s.loadKey()
	if err != nil {
		return err
	}
	return s.invoke(stdout, tokenID, types.MethodMint, types.MintArgs{To: *toStr, Amount: amount}, key)
}

func runBalance(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("balance", stderr)
	tokenStr := fs.String("token", "", "Token contract address")
	holderStr := fs.String("holder", "", "Holder address")
	if err := parse(fs, args); err != nil {
		return err
	}
	tokenID, err := parseIdentity("token", *tokenStr)
	if err != nil {
		return err
	}
	holder, err := parseIdentity("holder", *holderStr)
	if err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	bal, err := s.host.Balance(tokenID, holder)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, bal.String())
	return nil
}

func runInfo(args []string, stdout, stderr io.Writer) (err error) {
	fs, common := newFlagSet("info", stderr)
	walletStr := fs.String("wallet", "", "Wallet contract address")
	if err := parse(fs, args); err != nil {
		return err
	}
	wallet, err := parseIdentity("wallet", *walletStr)
	if err != nil {
		return err
	}
	s, err := openSession(common)
	if err != nil {
		return err
	}
	defer s.closeInto(&err)
	info, err := s.host.Wallet(wallet)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wallet:     %s\n", crypto.FormatContract(wallet))
	if !info.Initialized {
		fmt.Fprintln(stdout, "Owner:      (not initialized)")
		return nil
	}
	fmt.Fprintf(stdout, "Owner:      %s\n", crypto.FormatIdentity(info.Owner))
	if info.Charity == nil {
		fmt.Fprintln(stdout, "Charity:    (none)")
	} else {
		fmt.Fprintf(stdout, "Charity:    %s\n", crypto.FormatIdentity(info.Charity.Address))
		fmt.Fprintf(stdout, "Fee (bps):  %d\n", info.Charity.FeeBps)
	}
	fmt.Fprintf(stdout, "Live until: %d\n", info.LiveUntil)
	return nil
}
